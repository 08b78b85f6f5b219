package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath     string
	MetaPath       string
	Mode           string
	Replay         string
	LogLevel       string
	LogFormat      string
	Debug          bool
	ListRecordings bool
	ShowVersion    bool
	ShowHelp       bool
	Validate       bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config", getEnv("ECGVIEW_CONFIG", ""),
		"Path to JSON configuration file (env: ECGVIEW_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("ECGVIEW_CONFIG", ""),
		"Path to JSON configuration file (env: ECGVIEW_CONFIG)")

	fs.StringVar(&cfg.MetaPath, "meta", "",
		"Recording metadata sidecar, overrides record.meta")
	fs.StringVar(&cfg.Mode, "mode", "",
		"Initial caliper mode: independent, synchronized")
	fs.StringVar(&cfg.Replay, "replay", "",
		"Apply a JSON-lines gesture script and print the replies; - reads stdin")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (default from config)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (default from config)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("ECGVIEW_DEBUG", false),
		"Enable debug logging (env: ECGVIEW_DEBUG)")

	fs.BoolVar(&cfg.ListRecordings, "list-recordings", false,
		"List recordings with stored comments and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, stderr)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.Replay != "" && cfg.ListRecordings {
		return fmt.Errorf("--replay and --list-recordings are exclusive")
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - ECG annotation engine

Usage: %s [options]

Without --replay the engine serves renderer gestures over websocket and
exposes Prometheus metrics and /health on the same listener.

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Serve with a config file
  %[1]s --config=ecg.json

  # Replay a recorded gesture script against a recording
  %[1]s --meta=data/holter-0412.yaml --replay=session.jsonl

  # Pipe gestures in, synchronized calipers, debug logs on stderr
  cat session.jsonl | %[1]s --meta=holter.yaml --mode=sync --replay=- --debug

Version: %[2]s
`, appName, Version)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
