// Package observability provides the process-wide loggers. All logs go to
// stderr: stdout is reserved for command output and, in stdio mode, the MCP
// protocol channel.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Logging profiles.
const (
	// ProfileStructured emits JSON lines for log shippers.
	ProfileStructured = "structured"

	// ProfileCLI emits human-readable console output.
	ProfileCLI = "cli"
)

// CLILogger is the logger used by CLI commands. It is a no-op until
// InitCLILogger runs after flag parsing.
var CLILogger = zap.NewNop()

// InitCLILogger installs the CLI logger. An unparseable level falls back to
// info rather than failing command startup.
func InitCLILogger(level string, structured bool) {
	profile := ProfileCLI
	if structured {
		profile = ProfileStructured
	}
	logger, err := NewLogger(level, profile)
	if err != nil {
		logger, _ = NewLogger("info", profile)
	}
	CLILogger = logger
}

// NewLogger builds a zap logger for the given level and profile, writing to
// stderr only.
func NewLogger(level, profile string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(profile) {
	case ProfileStructured, "":
		cfg = zap.NewProductionConfig()
	case ProfileCLI, "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}

	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
