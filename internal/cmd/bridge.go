package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/piolab/piobridge/internal/config"
	"github.com/piolab/piobridge/internal/observability"
	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/dispatch"
	"github.com/piolab/piobridge/pkg/jobschema"
	"github.com/piolab/piobridge/pkg/mcp"
	"github.com/piolab/piobridge/pkg/resources"
)

// serverName is reported to MCP clients during initialization.
const serverName = "piobridge"

// bridge is the assembled MCP stack shared by the stdio and serve commands.
type bridge struct {
	cfg    *config.Config
	logger *zap.Logger
	client *backend.Client
	mcp    *mcp.Server
}

// buildBridge loads configuration and assembles the backend client,
// dispatcher, aggregator, and MCP server.
func buildBridge(ctx context.Context) (*bridge, error) {
	cfg, err := config.Load(ctx, flagOverrides())
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}

	table, err := jobschema.Load()
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Broken embedded job-schema table", err)
	}

	client := backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
	}, logger)

	dispatcher := dispatch.New(client, table, dispatch.Config{UnitFilter: cfg.Bridge.UnitFilter}, logger)
	aggregator := resources.New(client, table, resources.Config{UnitFilter: cfg.Bridge.UnitFilter}, logger)

	mcpServer, err := mcp.New(dispatcher, aggregator, mcp.Config{
		Name:    serverName,
		Version: versionInfo.Version,
	}, logger)
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Broken embedded tool schemas", err)
	}

	return &bridge{cfg: cfg, logger: logger, client: client, mcp: mcpServer}, nil
}
