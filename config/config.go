package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/caliper"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/kvstore"
)

// Comment storage backends
const (
	BackendFile = "file" // One JSON document per recording below a directory
	BackendNATS = "nats" // NATS JetStream KeyValue bucket
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ECGVIEW"

// Config represents the complete application configuration
type Config struct {
	Record   RecordConfig   `json:"record"`
	Comments CommentsConfig `json:"comments"`
	Calipers CalipersConfig `json:"calipers"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// RecordConfig locates the recording metadata sidecar
type RecordConfig struct {
	Meta string `json:"meta,omitempty"` // YAML or JSON sidecar path
}

// CommentsConfig selects where comments are persisted
type CommentsConfig struct {
	Backend string         `json:"backend"`
	Dir     string         `json:"dir,omitempty"`
	NATS    kvstore.Config `json:"nats"`
}

// CalipersConfig holds the initial caliper mode
type CalipersConfig struct {
	Mode string `json:"mode"` // independent or synchronized
}

// ServerConfig configures the gesture websocket, metrics and health endpoints
type ServerConfig struct {
	Addr        string `json:"addr"`
	WSPath      string `json:"ws_path"`
	MetricsPath string `json:"metrics_path"`
	HealthPath  string `json:"health_path"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch c.Comments.Backend {
	case BackendFile:
		if c.Comments.Dir == "" {
			return invalid("comments.dir is required for the file backend")
		}
	case BackendNATS:
		if c.Comments.NATS.URL == "" {
			return invalid("comments.nats.url is required for the nats backend")
		}
		if c.Comments.NATS.Bucket == "" {
			return invalid("comments.nats.bucket is required for the nats backend")
		}
	default:
		return invalid(fmt.Sprintf("comments.backend %q is not one of %q, %q",
			c.Comments.Backend, BackendFile, BackendNATS))
	}

	if _, err := caliper.ParseMode(c.Calipers.Mode); err != nil {
		return err
	}

	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	paths := []string{c.Server.WSPath, c.Server.MetricsPath, c.Server.HealthPath}
	for i, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return invalid("server paths must start with /")
		}
		if slices.Contains(paths[:i], p) {
			return invalid(fmt.Sprintf("server path %q is used twice", p))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q is not a known level", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}

	return nil
}

func invalid(problem string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem),
		"Config", "Validate", "validate configuration")
}

// Defaults returns the configuration used when no file is given
func Defaults() *Config {
	return &Config{
		Comments: CommentsConfig{
			Backend: BackendFile,
			Dir:     ".",
			NATS:    kvstore.DefaultConfig(),
		},
		Calipers: CalipersConfig{
			Mode: caliper.ModeIndependent.String(),
		},
		Server: ServerConfig{
			Addr:            ":8050",
			WSPath:          "/ws",
			MetricsPath:     "/metrics",
			HealthPath:      "/healthz",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = l.mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON structure: %v", errors.ErrInvalidConfig, err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}

	if err := parseDurations(rawConfig); err != nil {
		return nil, err
	}
	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	convert := func(section map[string]any, key, name string) error {
		s, ok := section[key].(string)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, name, err)
		}
		section[key] = d.Nanoseconds()
		return nil
	}

	if server, ok := data["server"].(map[string]any); ok {
		if err := convert(server, "shutdown_timeout", "server.shutdown_timeout"); err != nil {
			return err
		}
	}
	if comments, ok := data["comments"].(map[string]any); ok {
		if nats, ok := comments["nats"].(map[string]any); ok {
			if err := convert(nats, "timeout", "comments.nats.timeout"); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		name   string
		target *string
	}{
		{"_RECORD_META", &cfg.Record.Meta},
		{"_COMMENTS_BACKEND", &cfg.Comments.Backend},
		{"_COMMENTS_DIR", &cfg.Comments.Dir},
		{"_NATS_URL", &cfg.Comments.NATS.URL},
		{"_NATS_BUCKET", &cfg.Comments.NATS.Bucket},
		{"_CALIPER_MODE", &cfg.Calipers.Mode},
		{"_SERVER_ADDR", &cfg.Server.Addr},
		{"_LOG_LEVEL", &cfg.Log.Level},
		{"_LOG_FORMAT", &cfg.Log.Format},
	}
	for _, o := range overrides {
		key := l.envPrefix + o.name
		val := l.getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read environment")
		}
		*o.target = val
	}
	return nil
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "encode configuration")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write configuration")
	}
	return nil
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
