package main

import (
	"context"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/executor"
	"github.com/isdmx/coderunner/httpapi"
	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/mcpserver"
)

var (
	portFlag      int
	transportFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution server",
	Long: `Start the CodeRunner server.

With the http transport the JSON API is served under /api, the MCP tool under
/mcp and Prometheus metrics under /metrics. With the stdio transport only the
MCP tool is served, on stdin and stdout.

Examples:
  coderunner serve
  coderunner serve --port 8080
  coderunner serve --transport stdio`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&transportFlag, "transport", "", "Transport, http or stdio (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func loadServeConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if portFlag > 0 {
		cfg.Server.HTTPPort = portFlag
	}
	if transportFlag != "" {
		switch transportFlag {
		case config.TransportHTTP, config.TransportStdio:
			cfg.Server.Transport = transportFlag
		default:
			return nil, fmt.Errorf("unsupported transport: %s", transportFlag)
		}
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	app := fx.New(
		engineModule(loadServeConfig),
		fx.Provide(
			newMCPServer,
			newHTTPServer,
		),
		fx.Invoke(startTransport),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func newMCPServer(cfg *config.Config, log *zap.Logger, coord *executor.Coordinator, registry *language.Registry) (*mcpserver.MCPServer, error) {
	return mcpserver.New(cfg, log, coord, registry)
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, coord *executor.Coordinator, registry *language.Registry, mcp *mcpserver.MCPServer, gatherer prometheus.Gatherer) *httpapi.Server {
	return httpapi.New(log, coord, registry,
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithGatherer(gatherer),
		httpapi.WithMCPHandler(mcp.Handler()),
	)
}

// startTransport starts the configured transport with the application and
// stops it with the application.
func startTransport(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle, shutdowner fx.Shutdowner, mcp *mcpserver.MCPServer, srv *httpapi.Server) {
	switch cfg.Server.Transport {
	case config.TransportStdio:
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					err := mcp.ServeStdio()
					if err != nil {
						log.Error("stdio transport stopped", zap.Error(err))
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		})
	case config.TransportHTTP:
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
				if err != nil {
					return fmt.Errorf("listen on port %d: %w", cfg.Server.HTTPPort, err)
				}
				go func() {
					if err := srv.Serve(ln); err != nil {
						log.Error("http server stopped", zap.Error(err))
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout())
				defer cancel()
				return srv.Shutdown(ctx)
			},
		})
	}
}
