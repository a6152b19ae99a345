package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	Long: `Serve MCP over newline-delimited JSON-RPC on stdin/stdout.

This is the transport MCP clients spawn as a subprocess. All logs go to
stderr; stdout carries only protocol frames.

Example:
  piobridge stdio --backend-url http://pioreactor.local/api`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := buildBridge(ctx)
	if err != nil {
		return err
	}

	b.logger.Info("serving MCP over stdio",
		zap.String("backend", b.client.BaseURL()),
		zap.String("unit_filter", b.cfg.Bridge.UnitFilter))

	if err := b.mcp.Run(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return exitError(foundry.ExitSignalInt, "Interrupted", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "stdio transport failed", err)
	}
	return nil
}
