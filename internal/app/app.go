package app

import (
	"context"
	"fmt"

	"proppilot/internal/config"
	"proppilot/internal/logger"
	"proppilot/internal/runner"
	"proppilot/internal/scheduler"
	"proppilot/internal/store/decisionlog"
	"proppilot/internal/store/runstate"
	httpapi "proppilot/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: load config, build the
// dependency graph, then run the evaluation loop and the status API
// until the context is cancelled.
type App struct {
	cfg      *config.Config
	runner   *runner.Runner
	server   *httpapi.Server
	logs     *decisionlog.Store
	runstate *runstate.Store
	runImmed bool
	interval int
	offset   int
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the aligned evaluation loop and the status HTTP server,
// returning when the context is cancelled or either side fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.server != nil {
		group.Go(func() error {
			logger.Infof("status API listening on %s", a.server.Addr())
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx,
			secondsToDuration(a.interval), secondsToDuration(a.offset))
		sched.RunImmediately = a.runImmed
		sched.Start(func() { a.runner.RunCycle(ctx) })
		return nil
	})

	return group.Wait()
}

// Runner exposes the cycle runner for replay harnesses.
func (a *App) Runner() *runner.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

// Close releases the backing stores. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			logger.Warnf("closing decision log failed: %v", err)
		}
		a.logs = nil
	}
	if a.runstate != nil {
		if err := a.runstate.Close(); err != nil {
			logger.Warnf("closing run state store failed: %v", err)
		}
		a.runstate = nil
	}
}
