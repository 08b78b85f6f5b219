package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) Probe {
	return func(context.Context) error { return errors.New(msg) }
}

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *Monitor)
		status string
	}{
		{
			name:   "no probes",
			setup:  func(*Monitor) {},
			status: StatusHealthy,
		},
		{
			name: "all pass",
			setup: func(m *Monitor) {
				m.Require("comments", ok)
				m.Optional("gateway", ok)
			},
			status: StatusHealthy,
		},
		{
			name: "optional fails",
			setup: func(m *Monitor) {
				m.Require("comments", ok)
				m.Optional("gateway", failing("no sessions"))
			},
			status: StatusDegraded,
		},
		{
			name: "required fails",
			setup: func(m *Monitor) {
				m.Require("comments", failing("bucket gone"))
				m.Optional("gateway", failing("no sessions"))
			},
			status: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor("ecgannotate")
			tt.setup(m)

			status := m.Check(context.Background())
			assert.Equal(t, "ecgannotate", status.Component)
			assert.Equal(t, tt.status, status.Status)
			assert.Equal(t, tt.status == StatusHealthy, status.Healthy)
			assert.Len(t, status.SubStatuses, len(m.Names()))
		})
	}
}

func TestMonitor_ReplaceAndRemove(t *testing.T) {
	m := NewMonitor("ecgannotate")
	m.Require("comments", failing("down"))
	m.Require("comments", ok)
	m.Optional("gateway", ok)
	assert.Equal(t, []string{"comments", "gateway"}, m.Names())
	assert.True(t, m.Check(context.Background()).IsHealthy())

	m.Remove("comments")
	assert.Equal(t, []string{"gateway"}, m.Names())
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	m := NewMonitor("ecgannotate")
	m.SetTimeout(10 * time.Millisecond)
	m.Require("comments", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := m.Check(context.Background())
	require.Len(t, status.SubStatuses, 1)
	assert.True(t, status.SubStatuses[0].IsUnhealthy())
	assert.Contains(t, status.SubStatuses[0].Message, "deadline exceeded")
}

func TestMonitor_SanitizesMessages(t *testing.T) {
	m := NewMonitor("ecgannotate")
	m.Require("comments", failing("cannot connect to nats://admin:pw@10.0.0.5:4222"))

	sub := m.Check(context.Background()).SubStatuses[0]
	assert.Equal(t, "cannot connect to [URL]", sub.Message)
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("ecgannotate")
	m.Require("comments", ok)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
	require.Len(t, body.SubStatuses, 1)
	assert.Equal(t, "comments", body.SubStatuses[0].Component)

	m.Require("comments", failing("disk full"))
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor("ecgannotate")
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				m.Require("comments", ok)
			} else {
				m.Optional("gateway", ok)
			}
		}()
		go func() {
			defer wg.Done()
			_ = m.Check(context.Background())
		}()
	}
	wg.Wait()
	assert.True(t, m.Check(context.Background()).IsHealthy())
}
