package caliper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

func TestNewMeasurement_Normalizes(t *testing.T) {
	m := NewMeasurement(20*time.Second, 10*time.Second, 5, -5, "mV")

	assert.Equal(t, 10*time.Second, m.X0)
	assert.Equal(t, 20*time.Second, m.X1)
	assert.Equal(t, -5.0, m.Y0)
	assert.Equal(t, 5.0, m.Y1)
	assert.Equal(t, "10,000ms", m.TimeText)
	assert.Equal(t, "10.0mV", m.AmplitudeText)
}

func TestNewMeasurement_DefaultUnit(t *testing.T) {
	m := NewMeasurement(0, 250*time.Millisecond, 0, 1.5, "")
	assert.Equal(t, "250ms", m.TimeText)
	assert.Equal(t, "1.5mV", m.AmplitudeText)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "0ms"},
		{"sub-second", 820 * time.Millisecond, "820ms"},
		{"grouped", 8 * time.Second, "8,000ms"},
		{"rounded", 1500*time.Millisecond + 600*time.Microsecond, "1,501ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(tt.in))
		})
	}
}

func TestMeasurement_Outside(t *testing.T) {
	w := render.Window{Start: 0, End: 20 * time.Second}

	tests := []struct {
		name   string
		x0, x1 time.Duration
		want   bool
	}{
		{"inside", 5 * time.Second, 10 * time.Second, false},
		{"straddles end", 15 * time.Second, 25 * time.Second, false},
		{"starts at end", 20 * time.Second, 30 * time.Second, true},
		{"after end", 25 * time.Second, 40 * time.Second, true},
		{"ends at start", -5 * time.Second, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeasurement(tt.x0, tt.x1, 0, 1, "mV")
			assert.Equal(t, tt.want, m.Outside(w))
		})
	}
}

func TestMeasurement_Annotations(t *testing.T) {
	m := NewMeasurement(10*time.Second, 20*time.Second, -5, 5, "mV")
	anns := m.Annotations()

	if assert.Len(t, anns, 2) {
		assert.Equal(t, render.KindCaliperTime, anns[0].Kind)
		assert.Equal(t, 15*time.Second, anns[0].X)
		assert.Equal(t, 5.0, anns[0].Y)
		assert.Equal(t, "10,000ms", anns[0].Text)

		assert.Equal(t, render.KindCaliperAmplitude, anns[1].Kind)
		assert.Equal(t, 20*time.Second, anns[1].X)
		assert.Equal(t, 0.0, anns[1].Y)
		assert.Equal(t, "10.0mV", anns[1].Text)
	}
}
