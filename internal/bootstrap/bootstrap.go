// Package bootstrap holds the startup steps shared by every gigmarket
// process: env loading, config, logger and signal handling.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/instance"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// Process is a started binary. Kind doubles as the logger service name.
type Process struct {
	Kind     string
	Instance string
	Config   *config.Config
	Logger   *logger.Logger
}

// Start loads .env and config, then rebuilds the logger at the configured
// level. A config failure exits the process.
func Start(kind string) *Process {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "resource not working: config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	return &Process{
		Kind:     kind,
		Instance: instance.ID(kind),
		Config:   cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
}

// Require exits when a startup dependency failed.
func (p *Process) Require(ctx context.Context, resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

// Close runs fn and logs its error. Meant for defers.
func (p *Process) Close(name string, fn func() error) {
	if err := fn(); err != nil {
		p.Logger.Error(context.Background(), fmt.Sprintf("error closing %s", name), err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// identity as log fields.
func (p *Process) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"service_kind": p.Kind,
		"instance":    p.Instance,
	}), stop
}
