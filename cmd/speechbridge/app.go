package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chaz8081/speechbridge/internal/audio"
	"github.com/chaz8081/speechbridge/internal/bridge"
	"github.com/chaz8081/speechbridge/internal/config"
	"github.com/chaz8081/speechbridge/internal/metrics"
	"github.com/chaz8081/speechbridge/internal/permission"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	perms    *permission.Manager
	store    *permission.FileStore
	rec      recognize.Recognizer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// newApp loads configuration and builds the non-audio components. Prompts
// read from in and write to out.
func newApp(in io.Reader, out io.Writer) (*app, error) {
	if err := config.LoadDotEnv(".env", filepath.Join(config.DefaultConfigDir(), ".env")); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	prompter, err := permission.NewPrompter(cfg.Permission.Prompt, in, out)
	if err != nil {
		return nil, err
	}
	store := permission.NewFileStore(cfg.Permission.StorePath)

	rec, err := recognize.New(cfg.Recognizer, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		cfg:      cfg,
		logger:   logger,
		perms:    permission.NewManager(store, prompter, logger),
		store:    store,
		rec:      rec,
		registry: registry,
		metrics:  metrics.New(registry),
	}, nil
}

// newBridge opens the audio device context, starts watching the consent file
// and assembles the bridge. The returned function releases both.
func (a *app) newBridge() (*bridge.Bridge, func(), error) {
	recorder, err := audio.NewRecorder(a.cfg.Audio.SampleRate, a.cfg.Audio.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audio recorder: %w", err)
	}
	b := bridge.New(a.rec, recorder, a.perms, bridge.Options{
		DefaultLanguage:    a.cfg.Listen.DefaultLanguage,
		MaxMatches:         a.cfg.Listen.MaxMatches,
		SampleRate:         int(a.cfg.Audio.SampleRate),
		Channels:           int(a.cfg.Audio.Channels),
		RecordDir:          a.cfg.Audio.RecordDir,
		FlushTimeout:       a.cfg.Listen.FlushTimeout,
		StopOnUtteranceEnd: a.cfg.Listen.StopOnUtteranceEnd,
		Metrics:            a.metrics,
		Logger:             a.logger,
	})

	// Pick up "permission revoke" run from another process.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	if err := a.perms.Watch(watchCtx); err != nil {
		a.logger.Warn("consent changes from other processes will not be seen", "error", err)
	}

	cleanup := func() {
		stopWatch()
		if err := recorder.Close(); err != nil {
			a.logger.Warn("closing audio recorder", "error", err)
		}
	}
	return b, cleanup, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config, mode string) {
	fmt.Fprintln(w, "=== speechbridge ===")
	fmt.Fprintf(w, "  Mode:       %s\n", mode)
	fmt.Fprintf(w, "  Recognizer: %s (%s)\n", cfg.Recognizer.Backend, cfg.Recognizer.Model)
	fmt.Fprintf(w, "  Language:   %s\n", orDefault(cfg.Listen.DefaultLanguage, "system locale"))
	fmt.Fprintf(w, "  Audio:      %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	switch mode {
	case "serve":
		fmt.Fprintf(w, "  Listen:     %s\n", cfg.Host.Addr)
		fmt.Fprintf(w, "  Auth:       %s\n", enabled(cfg.Host.AuthToken != ""))
	case "dictate":
		fmt.Fprintf(w, "  Hotkey:     %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
		fmt.Fprintf(w, "  Inject:     %s\n", cfg.Inject.Method)
	}
	fmt.Fprintf(w, "  Log:        %s\n", cfg.LogLevel)
	fmt.Fprintln(w, "====================")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
