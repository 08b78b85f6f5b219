// Package main runs the ECG annotation engine, either as a websocket service
// for the waveform renderer or as a replay tool for recorded gesture scripts.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/annotation"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/caliper"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/comment"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/config"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/gateway"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/health"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/record"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/filestore"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/kvstore"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "ecgannotate"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// app holds what the serve and replay modes share.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	backend  storage.Store
	comments *comment.Store
	meta     *record.Meta
	mode     caliper.Mode
	closers  []func() error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cli.ShowHelp {
		return flag.ErrHelp
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	a := &app{cfg: cfg, logger: logger, registry: metric.NewMetricsRegistry()}
	defer a.close()

	if err := a.openBackend(ctx); err != nil {
		return err
	}
	if cli.ListRecordings {
		return a.listRecordings(ctx, stdout)
	}
	if err := a.openRecording(ctx); err != nil {
		return err
	}

	logger.Info("Recording loaded",
		"recording", a.meta.Name(),
		"channels", len(a.meta.Channels),
		"sample_rate", a.meta.SampleRate,
		"mode", a.mode,
		"comments", a.comments.Len())

	if cli.Replay != "" {
		in := stdin
		if cli.Replay != "-" {
			f, err := os.Open(cli.Replay)
			if err != nil {
				return errors.WrapInvalid(err, "main", "run", "open gesture script")
			}
			defer f.Close()
			in = f
		}
		return a.replay(ctx, in, stdout)
	}
	return a.serve(ctx)
}

// loadConfig layers the config file, environment and flags.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.MetaPath != "" {
		cfg.Record.Meta = cli.MetaPath
	}
	if cli.Mode != "" {
		cfg.Calipers.Mode = cli.Mode
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) openBackend(ctx context.Context) error {
	switch a.cfg.Comments.Backend {
	case config.BackendNATS:
		store, err := kvstore.Connect(ctx, a.cfg.Comments.NATS)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.backend = store
		a.logger.Info("Comments stored in NATS KV",
			"url", a.cfg.Comments.NATS.URL, "bucket", a.cfg.Comments.NATS.Bucket)
	default:
		store, err := filestore.New(a.cfg.Comments.Dir)
		if err != nil {
			return err
		}
		a.backend = store
		a.logger.Info("Comments stored on disk", "dir", store.Root())
	}
	return nil
}

func (a *app) openRecording(ctx context.Context) error {
	if a.cfg.Record.Meta == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: record.meta or --meta", errors.ErrMissingConfig),
			"main", "openRecording", "locate recording metadata")
	}
	meta, err := record.LoadMeta(a.cfg.Record.Meta)
	if err != nil {
		return err
	}
	mode, err := caliper.ParseMode(a.cfg.Calipers.Mode)
	if err != nil {
		return err
	}

	metrics := a.registry.CoreMetrics()
	comments, err := comment.Open(ctx, a.backend, meta.Name(),
		comment.WithLogger(a.logger), comment.WithMetrics(metrics))
	if err != nil {
		return err
	}

	a.meta, a.mode, a.comments = meta, mode, comments
	return nil
}

func (a *app) newEngine() (*annotation.Engine, error) {
	return annotation.NewEngine(a.meta, a.comments,
		annotation.WithLogger(a.logger),
		annotation.WithMetrics(a.registry.CoreMetrics()),
		annotation.WithMode(a.mode))
}

func (a *app) listRecordings(ctx context.Context, w io.Writer) error {
	keys, err := a.backend.List(ctx, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if name, ok := strings.CutSuffix(key, comment.KeyFor("")); ok && name != "" {
			_, _ = fmt.Fprintln(w, name)
		}
	}
	return nil
}

// serve runs the websocket gateway, metrics and health endpoints until ctx
// is cancelled.
func (a *app) serve(ctx context.Context) error {
	gw := gateway.NewServer(gateway.DefaultConfig(), a.newEngine,
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(a.registry.CoreMetrics()))

	mux := http.NewServeMux()
	gw.RegisterHTTPHandlers(a.cfg.Server.WSPath, mux)
	a.registry.Mount(mux, a.cfg.Server.MetricsPath)
	mux.Handle(a.cfg.Server.HealthPath, a.monitor().Handler())

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Serving gestures",
			"addr", a.cfg.Server.Addr,
			"ws_path", a.cfg.Server.WSPath,
			"metrics_path", a.cfg.Server.MetricsPath,
			"health_path", a.cfg.Server.HealthPath)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.WrapTransient(err, "main", "serve", "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("Received shutdown signal")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown
		_ = gw.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Shutdown complete")
	return nil
}

// monitor probes the comment backend for the recording being served.
func (a *app) monitor() *health.Monitor {
	m := health.NewMonitor(appName)
	key := comment.KeyFor(a.meta.Name())
	m.Require("comments", func(ctx context.Context) error {
		_, err := a.backend.List(ctx, key)
		return err
	})
	return m
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
}
