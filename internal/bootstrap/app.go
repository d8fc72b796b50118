// Package bootstrap wires configuration, logging and telemetry and runs the
// application's long-lived components under one signal-aware context.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedgedesk/internal/core"
	"hedgedesk/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

const serviceName = "hedgedesk"

// App represents the application context and holds core dependencies.
type App struct {
	Cfg       *Config
	Logger    core.ILogger
	Telemetry *telemetry.Telemetry

	syncLogger func() error
}

// NewApp creates a new App instance by bootstrapping all dependencies.
func NewApp(configPath string, envFiles ...string) (*App, error) {
	cfg, err := LoadConfig(configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	tel, err := telemetry.Setup(serviceName, telemetry.Options{
		StdoutTraces: cfg.Telemetry.StdoutTraces,
		StdoutLogs:   cfg.Telemetry.StdoutLogs,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Logger after telemetry so the otelzap core picks up the log provider.
	logger, syncLogger, err := InitLogger(cfg)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("logger: %w", err)
	}

	return &App{
		Cfg:        cfg,
		Logger:     logger,
		Telemetry:  tel,
		syncLogger: syncLogger,
	}, nil
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Run orchestrates the application lifecycle, including signal handling.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.shutdown()

	return a.run(ctx, runners...)
}

func (a *App) run(ctx context.Context, runners ...Runner) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application", "runners", len(runners))

	for _, r := range runners {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	// errgroup cancels ctx on the first failure; a plain cancellation is a
	// signal-driven shutdown.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	if a.syncLogger != nil {
		_ = a.syncLogger()
	}
}
