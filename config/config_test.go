package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendFile, cfg.Comments.Backend)
	assert.Equal(t, "independent", cfg.Calipers.Mode)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "ecg_annotations", cfg.Comments.NATS.Bucket)
}

// Test loading config from JSON file
func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "ecg.json", `{
		"record": {"meta": "data/holter.yaml"},
		"comments": {
			"backend": "nats",
			"nats": {"url": "nats://nats:4222", "timeout": "3s"}
		},
		"calipers": {"mode": "synchronized"},
		"server": {"addr": ":9000", "shutdown_timeout": "2s"},
		"log": {"level": "debug", "format": "json"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "data/holter.yaml", cfg.Record.Meta)
	assert.Equal(t, BackendNATS, cfg.Comments.Backend)
	assert.Equal(t, "nats://nats:4222", cfg.Comments.NATS.URL)
	assert.Equal(t, 3*time.Second, cfg.Comments.NATS.Timeout)
	// untouched keys keep their defaults
	assert.Equal(t, "ecg_annotations", cfg.Comments.NATS.Bucket)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, "/healthz", cfg.Server.HealthPath)
	assert.Equal(t, "synchronized", cfg.Calipers.Mode)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_Layers(t *testing.T) {
	base := writeConfig(t, "base.json", `{"comments": {"dir": "/var/lib/ecg"}, "log": {"level": "warn"}}`)
	site := writeConfig(t, "site.json", `{"log": {"format": "json"}}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ecg", cfg.Comments.Dir)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("ECGVIEW_CALIPER_MODE", "sync")
	t.Setenv("ECGVIEW_COMMENTS_DIR", "/tmp/comments")
	t.Setenv("ECGVIEW_LOG_LEVEL", "error")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "sync", cfg.Calipers.Mode)
	assert.Equal(t, "/tmp/comments", cfg.Comments.Dir)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_EnvOverrideRejectsNullByte(t *testing.T) {
	l := NewLoader()
	l.getenv = func(key string) string {
		if key == "ECGVIEW_SERVER_ADDR" {
			return ":80\x00"
		}
		return ""
	}

	_, err := l.Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"bad json", "bad.json", `{"log": `, errors.ErrInvalidConfig},
		{"bad duration", "dur.json", `{"server": {"shutdown_timeout": "soon"}}`, errors.ErrInvalidConfig},
		{"not json extension", "cfg.yaml", `{}`, errors.ErrInvalidConfig},
		{"unknown backend", "backend.json", `{"comments": {"backend": "s3"}}`, errors.ErrInvalidConfig},
		{"unknown mode", "mode.json", `{"calipers": {"mode": "linked"}}`, errors.ErrInvalidConfig},
		{"nats without bucket", "nats.json", `{"comments": {"backend": "nats", "nats": {"bucket": ""}}}`, errors.ErrInvalidConfig},
		{"same paths", "paths.json", `{"server": {"ws_path": "/metrics"}}`, errors.ErrInvalidConfig},
		{"health path clash", "health.json", `{"server": {"health_path": "/ws"}}`, errors.ErrInvalidConfig},
		{"bad level", "level.json", `{"log": {"level": "loud"}}`, errors.ErrInvalidConfig},
		{"too deep", "deep.json", `{"a":` + strings.Repeat("[", 40) + strings.Repeat("]", 40) + `}`, errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := NewLoader().LoadFile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestLoader_ValidationDisabled(t *testing.T) {
	path := writeConfig(t, "lax.json", `{"comments": {"backend": "s3"}}`)

	l := NewLoader()
	l.EnableValidation(false)
	l.AddLayer(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Comments.Backend)
}

func TestConfig_SaveAndReload(t *testing.T) {
	cfg := Defaults()
	cfg.Calipers.Mode = "synchronized"
	cfg.Comments.NATS.Timeout = 750 * time.Millisecond

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Contains(t, loaded.String(), `"mode": "synchronized"`)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[[", "b": [1, 2]}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [1, 2}`+`]]`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [`)))
}
