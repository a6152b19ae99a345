// Package cmd implements the piobridge CLI: stdio and HTTP MCP transports
// plus diagnostics.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piolab/piobridge/internal/observability"
	"github.com/piolab/piobridge/internal/server/handlers"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo installs build metadata from main's ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
	handlers.SetVersionInfo(handlers.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
}

var (
	rootLogLevel       string
	rootLogProfile     string
	rootBackendURL     string
	rootBackendTimeout string
	rootRateLimit      float64
	rootUnitFilter     string
)

var rootCmd = &cobra.Command{
	Use:   "piobridge",
	Short: "MCP bridge for Pioreactor bioreactor clusters",
	Long: `piobridge exposes a Pioreactor cluster's control API to MCP clients.

Job control (start, stop, update settings, LED intensity, stirring speed)
is exposed as tools; experiments, workers, and job schemas as resources.
Every tool call forwards exactly one HTTP request to the cluster leader.

Examples:
  piobridge stdio                          # speak MCP on stdin/stdout
  piobridge serve --port 8080              # speak MCP over HTTP POST /mcp
  piobridge doctor                         # diagnose the installation`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(rootLogLevel,
			strings.EqualFold(rootLogProfile, observability.ProfileStructured))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	pf.StringVar(&rootLogProfile, "log-profile", observability.ProfileCLI, "Logging profile (cli|structured)")
	pf.StringVar(&rootBackendURL, "backend-url", "", "Control API base URL (overrides config)")
	pf.StringVar(&rootBackendTimeout, "backend-timeout", "", "Per-request backend deadline, e.g. 10s (overrides config)")
	pf.Float64Var(&rootRateLimit, "rate-limit", 0, "Max backend requests per second, 0 = unlimited (overrides config)")
	pf.StringVar(&rootUnitFilter, "unit-filter", "", "Glob restricting operations to matching workers (overrides config)")
}

// cliError carries the process exit code alongside the failure.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given
// code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

// ExitWithCode logs the failure and terminates immediately.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	os.Exit(code)
}

// Execute runs the CLI and exits the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *cliError
		if errors.As(err, &cliErr) {
			ExitWithCode(observability.CLILogger, cliErr.code, cliErr.message, cliErr.err)
		}
		ExitWithCode(observability.CLILogger, 1, "command failed", err)
	}
}

// flagOverrides maps explicitly-set persistent flags onto config overrides,
// so flags outrank both config defaults and environment variables.
func flagOverrides() map[string]any {
	overrides := map[string]any{}
	backendOverrides := map[string]any{}
	bridgeOverrides := map[string]any{}
	loggingOverrides := map[string]any{}

	pf := rootCmd.PersistentFlags()
	if rootBackendURL != "" {
		backendOverrides["base_url"] = rootBackendURL
	}
	if rootBackendTimeout != "" {
		backendOverrides["timeout"] = rootBackendTimeout
	}
	if pf.Changed("rate-limit") {
		backendOverrides["rate_limit"] = rootRateLimit
	}
	if rootUnitFilter != "" {
		bridgeOverrides["unit_filter"] = rootUnitFilter
	}
	if pf.Changed("log-level") {
		loggingOverrides["level"] = rootLogLevel
	}
	if pf.Changed("log-profile") {
		loggingOverrides["profile"] = rootLogProfile
	}

	if len(backendOverrides) > 0 {
		overrides["backend"] = backendOverrides
	}
	if len(bridgeOverrides) > 0 {
		overrides["bridge"] = bridgeOverrides
	}
	if len(loggingOverrides) > 0 {
		overrides["logging"] = loggingOverrides
	}
	return overrides
}
