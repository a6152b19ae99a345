package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piolab/piobridge/internal/observability"
	"github.com/piolab/piobridge/internal/server"
	"github.com/piolab/piobridge/internal/server/handlers"
	"github.com/piolab/piobridge/pkg/dispatch"
	"github.com/piolab/piobridge/pkg/jobschema"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP",
	Long: `Serve MCP over HTTP: one JSON-RPC message per POST /mcp, plus
health probes and version under /health and /version.

Example:
  piobridge serve --host 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

// backendHealthChecker probes the control API with a cheap listing call.
type backendHealthChecker struct {
	caller dispatch.Caller
}

func (c backendHealthChecker) CheckHealth(ctx context.Context) error {
	result := c.caller.Request(ctx, http.MethodGet, "/experiments", nil)
	if !result.Success {
		return fmt.Errorf("backend check failed (%s): %s", result.Code, result.Message)
	}
	return nil
}

// schemaHealthChecker verifies the embedded job-schema table still parses.
type schemaHealthChecker struct{}

func (schemaHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := jobschema.Load()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := buildBridge(ctx)
	if err != nil {
		return err
	}

	if b.cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		handlers.GetHealthManager().RegisterChecker("backend", backendHealthChecker{caller: b.client})
		handlers.GetHealthManager().RegisterChecker("job_schemas", schemaHealthChecker{})
	}

	host := b.cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := b.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(host, port)
	srv.SetLogger(b.logger)
	srv.ReadTimeout = b.cfg.Server.ReadTimeout
	srv.WriteTimeout = b.cfg.Server.WriteTimeout
	srv.IdleTimeout = b.cfg.Server.IdleTimeout
	srv.ShutdownTimeout = b.cfg.Server.ShutdownTimeout
	srv.MountMCP(b.mcp)

	observability.CLILogger.Info("serving MCP over HTTP",
		zap.String("addr", srv.Addr()),
		zap.String("backend", b.client.BaseURL()),
		zap.String("unit_filter", b.cfg.Bridge.UnitFilter))

	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
	}
	return nil
}
