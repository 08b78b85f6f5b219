package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

func TestLoadMeta_YAML(t *testing.T) {
	m, err := LoadMeta("testdata/holter.yaml")
	require.NoError(t, err)

	assert.Equal(t, "holter-0412", m.Name())
	assert.Equal(t, []string{"I", "II", "V1"}, m.ChannelNames())
	assert.Equal(t, "mV", m.AmplitudeUnit())

	tags := m.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, 4*time.Second, tags[0].Time)
	assert.Equal(t, "PVC", tags[0].Text)
	assert.Equal(t, 10*time.Second, tags[1].Time)

	start, end := m.VisibleSampleWindow()
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(50000), end)
}

func TestLoadMeta_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec-7.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"sample_rate": 1000, "channels": ["II"], "window": [5000, 15000]}`), 0o644))

	m, err := LoadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "rec-7", m.Name())
	start, end := m.VisibleSampleWindow()
	assert.Equal(t, int64(5000), start)
	assert.Equal(t, int64(15000), end)
}

func TestLoadMeta_Errors(t *testing.T) {
	_, err := LoadMeta("testdata/missing.yaml")
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)

	tests := []struct {
		name string
		body string
	}{
		{"no rate", `{"channels": ["I"]}`},
		{"no channels", `{"sample_rate": 250}`},
		{"bad window", `{"sample_rate": 250, "channels": ["I"], "window": [10, 5]}`},
		{"tags out of order", `{"sample_rate": 250, "channels": ["I"],
			"tags": [{"sample": 900, "text": "b"}, {"sample": 100, "text": "a"}]}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "meta.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadMeta(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestMeta_Conversions(t *testing.T) {
	m := &Meta{SampleRate: 360, Channels: []string{"MLII"}}

	assert.Equal(t, time.Second, m.CountToTime(360))
	assert.Equal(t, 2777*time.Microsecond, m.CountToTime(1))
	assert.Equal(t, int64(360), m.TimeToCount(time.Second))
	assert.Equal(t, int64(1), m.TimeToCount(2777*time.Microsecond))
	// renderer milliseconds reach the record as durations
	assert.Equal(t, int64(3600), m.TimeToCount(10*time.Second))
	assert.Equal(t, int64(4), m.TimeToCount(10*time.Millisecond))

	start, end := m.VisibleSampleWindow()
	assert.Equal(t, DefaultWindow[0], start)
	assert.Equal(t, DefaultWindow[1], end)
}
