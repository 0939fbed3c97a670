package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/executor"
	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

// engineModule wires everything needed to execute a request.
func engineModule(loadConfig func() (*config.Config, error)) fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			loadConfig,

			// Logger with configuration
			logger.NewFromConfig,

			// Execution engine
			language.NewFromConfig,
			workspace.NewFromConfig,
			newRuntime,
			newRunner,
			newMetrics,
			executor.NewFromConfig,
		),

		// Remove leftovers of a previous process before serving anything
		fx.Invoke(sweepOnStart),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

func newRuntime(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle) (sandbox.Runtime, error) {
	rt, err := sandbox.NewRuntime(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return rt.Ping(ctx)
		},
		OnStop: func(context.Context) error {
			return rt.Close()
		},
	})
	return rt, nil
}

func newRunner(log *zap.Logger, rt sandbox.Runtime) *sandbox.Runner {
	return sandbox.NewRunner(log, rt)
}

// newMetrics registers the engine metrics plus the Go and process collectors
// on a private registry.
func newMetrics() (*executor.Metrics, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return executor.NewMetrics(reg), reg
}

func sweepOnStart(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle, runner *sandbox.Runner, workspaces *workspace.Manager) {
	if !cfg.Sandbox.SweepOnStart {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			containers, err := runner.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep containers: %w", err)
			}
			dirs, err := workspaces.Sweep()
			if err != nil {
				return fmt.Errorf("sweep workspaces: %w", err)
			}
			if containers > 0 || dirs > 0 {
				log.Info("removed leftovers of a previous run",
					zap.Int("containers", containers),
					zap.Int("workspaces", dirs))
			}
			return nil
		},
	})
}
