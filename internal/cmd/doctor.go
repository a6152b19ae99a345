package cmd

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	schemasassets "github.com/piolab/piobridge/internal/assets/schemas"
	"github.com/piolab/piobridge/internal/config"
	"github.com/piolab/piobridge/internal/observability"
	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/jobschema"
)

var doctorSkipBackend bool

// doctorBackendTimeout bounds the reachability probe.
const doctorBackendTimeout = 5 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the bridge installation and the configured
control API, and suggest fixes for common issues.

Examples:
  piobridge doctor                                  # full check
  piobridge doctor --skip-backend                   # offline check
  piobridge doctor --backend-url http://pio.local/api`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipBackend, "skip-backend", false, "Skip the backend reachability check")
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== piobridge doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 6
	if doctorSkipBackend {
		totalChecks = 5
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.24" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.24+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Embedded job-schema table
	table, err := jobschema.Load()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking job-schema table... ❌ %v", checkNum, totalChecks, err),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking job-schema table... ✅ %s (%d jobs)", checkNum, totalChecks, table.Version, len(table.Schemas)),
			zap.String("table_version", table.Version),
			zap.Int("jobs", len(table.Schemas)))
	}
	checkNum++

	// Check 3: Tool schemas compile
	if err := checkToolSchemas(); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking tool schemas... ❌ %v", checkNum, totalChecks, err),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking tool schemas... ✅ all compile", checkNum, totalChecks))
	}
	checkNum++

	// Check 4: Configuration
	cfg, err := config.Load(cmd.Context(), flagOverrides())
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ %v", checkNum, totalChecks, err),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ backend %s", checkNum, totalChecks, cfg.Backend.BaseURL),
			zap.String("backend_url", cfg.Backend.BaseURL))
	}
	checkNum++

	// Check 5: Backend reachability
	if !doctorSkipBackend {
		if cfg == nil {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking backend... ⚠️  skipped (no configuration)", checkNum, totalChecks))
			allChecks = false
		} else if ok := checkBackend(cmd.Context(), cfg, checkNum, totalChecks); !ok {
			allChecks = false
		}
		checkNum++
	}

	// Check 6: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your piobridge installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// checkToolSchemas compiles every embedded tool schema.
func checkToolSchemas() error {
	assets := map[string][]byte{
		"start_job":           schemasassets.StartJobToolSchema,
		"stop_job":            schemasassets.StopJobToolSchema,
		"update_job_settings": schemasassets.UpdateJobSettingsToolSchema,
		"set_led_intensity":   schemasassets.SetLEDIntensityToolSchema,
		"set_stirring_speed":  schemasassets.SetStirringSpeedToolSchema,
	}
	for name, data := range assets {
		if len(data) == 0 {
			return fmt.Errorf("embedded schema for %s is empty", name)
		}
		if _, err := schema.NewValidator(data); err != nil {
			return fmt.Errorf("compiling schema for %s: %w", name, err)
		}
	}
	return nil
}

// checkBackend probes the control API with a listing call and prints help
// when it cannot be reached.
func checkBackend(ctx context.Context, cfg *config.Config, checkNum, totalChecks int) bool {
	probeCtx, cancel := context.WithTimeout(ctx, doctorBackendTimeout)
	defer cancel()

	client := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: doctorBackendTimeout,
	}, nil)

	result := client.Request(probeCtx, http.MethodGet, "/experiments", nil)
	if !result.Success {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking backend... ❌ %s (%s)", checkNum, totalChecks, result.Message, result.Code),
			zap.String("backend_url", cfg.Backend.BaseURL),
			zap.String("code", result.Code))
		printBackendHelp()
		return false
	}

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking backend... ✅ reachable at %s", checkNum, totalChecks, cfg.Backend.BaseURL),
		zap.String("backend_url", cfg.Backend.BaseURL))
	return true
}

// printBackendHelp prints help for configuring the control API connection.
func printBackendHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure the control API connection:")
	observability.CLILogger.Info("  1. Set PIOBRIDGE_BACKEND_URL to the leader's API root, or")
	observability.CLILogger.Info("  2. Pass --backend-url http://<leader>/api, or")
	observability.CLILogger.Info("  3. Run the bridge on the leader unit (default http://localhost/api)")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Use --skip-backend to run offline checks only.")
	observability.CLILogger.Info("")
}
