// Package dispatch maps each abstract bridge operation onto exactly one
// backend call, validating operation parameters locally before anything
// touches the network.
//
// The dispatcher is stateless: every call is one-shot, carries its own
// Address, and returns the backend's normalized result unchanged (plus the
// Address echoed for traceability). Calls on the same Address are not
// serialized here; ordering is the caller's concern.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/piolab/piobridge/pkg/address"
	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/jobschema"
)

// Caller issues one normalized backend request. *backend.Client satisfies
// it; tests substitute counting fakes.
type Caller interface {
	Request(ctx context.Context, method, path string, body any) backend.OperationResult
}

// InvalidParameterError reports an operation parameter that failed local
// validation. It is produced before any network call.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// Result is an operation outcome: the backend's result with the target
// Address echoed back.
type Result struct {
	Address address.Address `json:"address"`
	backend.OperationResult
}

// Config configures a Dispatcher.
type Config struct {
	// UnitFilter optionally restricts operations to workers whose names
	// match this glob (doublestar syntax). Empty means all workers.
	UnitFilter string
}

// Dispatcher validates and forwards the five bridge operations.
type Dispatcher struct {
	caller     Caller
	schemas    *jobschema.Table
	unitFilter string
	logger     *zap.Logger
}

// New creates a Dispatcher. A nil logger disables logging.
func New(caller Caller, schemas *jobschema.Table, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		caller:     caller,
		schemas:    schemas,
		unitFilter: cfg.UnitFilter,
		logger:     logger,
	}
}

// StartJob starts a job on a worker. Settings may be nil; the backend
// receives an empty JSON object in that case.
func (d *Dispatcher) StartJob(ctx context.Context, worker, jobName, experiment string, settings map[string]any) (Result, error) {
	addr, err := d.validateTarget(worker, jobName, experiment)
	if err != nil {
		return Result{}, err
	}
	if err := checkSerializable(settings); err != nil {
		return Result{}, err
	}
	return d.patch(ctx, address.ActionRun, addr, settings), nil
}

// StopJob stops a running job.
func (d *Dispatcher) StopJob(ctx context.Context, worker, jobName, experiment string) (Result, error) {
	addr, err := d.validateTarget(worker, jobName, experiment)
	if err != nil {
		return Result{}, err
	}
	return d.patch(ctx, address.ActionStop, addr, nil), nil
}

// UpdateJobSettings applies new settings to a running job. Settings must be
// non-empty.
func (d *Dispatcher) UpdateJobSettings(ctx context.Context, worker, jobName, experiment string, settings map[string]any) (Result, error) {
	addr, err := d.validateTarget(worker, jobName, experiment)
	if err != nil {
		return Result{}, err
	}
	if len(settings) == 0 {
		return Result{}, &InvalidParameterError{Param: "settings", Reason: "must not be empty"}
	}
	if err := checkSerializable(settings); err != nil {
		return Result{}, err
	}
	return d.patch(ctx, address.ActionUpdate, addr, settings), nil
}

// SetLEDIntensity sets one LED channel's intensity. It is pure syntactic
// sugar over UpdateJobSettings: the channel name is the settings key, per
// the control API's led_intensity job, so the backend call is identical to
// the manual invocation.
func (d *Dispatcher) SetLEDIntensity(ctx context.Context, worker, experiment, channel string, intensity float64) (Result, error) {
	spec, ok := d.schemas.Setting(jobschema.JobLEDIntensity, channel)
	if !ok {
		return Result{}, &InvalidParameterError{
			Param:  "channel",
			Reason: fmt.Sprintf("unknown LED channel %q", channel),
		}
	}
	if !spec.InRange(intensity) {
		return Result{}, &InvalidParameterError{
			Param:  "intensity",
			Reason: fmt.Sprintf("%v is outside [%v, %v]", intensity, *spec.Min, *spec.Max),
		}
	}
	return d.UpdateJobSettings(ctx, worker, jobschema.JobLEDIntensity, experiment, map[string]any{channel: intensity})
}

// SetStirringSpeed sets the stirring target RPM. Sugar over
// UpdateJobSettings with the stirring job's target_rpm setting.
func (d *Dispatcher) SetStirringSpeed(ctx context.Context, worker, experiment string, rpm float64) (Result, error) {
	spec, ok := d.schemas.Setting(jobschema.JobStirring, jobschema.SettingTargetRPM)
	if !ok {
		return Result{}, &InvalidParameterError{
			Param:  "rpm",
			Reason: "stirring schema missing target_rpm",
		}
	}
	if !spec.InRange(rpm) {
		return Result{}, &InvalidParameterError{
			Param:  "rpm",
			Reason: fmt.Sprintf("%v is outside [%v, %v]", rpm, *spec.Min, *spec.Max),
		}
	}
	return d.UpdateJobSettings(ctx, worker, jobschema.JobStirring, experiment, map[string]any{jobschema.SettingTargetRPM: rpm})
}

// validateTarget validates the addressing triple and the unit filter.
// Both checks are local; nothing is dispatched on failure.
func (d *Dispatcher) validateTarget(worker, jobName, experiment string) (address.Address, error) {
	addr, err := address.Validate(worker, jobName, experiment)
	if err != nil {
		return address.Address{}, err
	}
	if d.unitFilter != "" {
		ok, matchErr := doublestar.Match(d.unitFilter, addr.Worker)
		if matchErr != nil {
			return address.Address{}, &InvalidParameterError{
				Param:  "worker",
				Reason: "unit filter pattern is invalid: " + matchErr.Error(),
			}
		}
		if !ok {
			return address.Address{}, &InvalidParameterError{
				Param:  "worker",
				Reason: fmt.Sprintf("%q is not covered by the configured unit filter", addr.Worker),
			}
		}
	}
	return addr, nil
}

func (d *Dispatcher) patch(ctx context.Context, action address.Action, addr address.Address, settings map[string]any) Result {
	path := address.JobPath(action, addr)
	result := d.caller.Request(ctx, http.MethodPatch, path, settingsBody(settings))

	d.logger.Info("dispatched operation",
		zap.String("action", string(action)),
		zap.String("worker", addr.Worker),
		zap.String("job_name", addr.JobName),
		zap.String("experiment", addr.Experiment),
		zap.Bool("success", result.Success),
		zap.String("code", result.Code))

	return Result{Address: addr, OperationResult: result}
}

// settingsBody normalizes a nil settings map to nil so the backend client
// applies its own empty-object default; a stop carries no settings at all.
func settingsBody(settings map[string]any) any {
	if settings == nil {
		return nil
	}
	return settings
}

// checkSerializable rejects settings the transport cannot carry. Semantic
// validation of setting values belongs to the backend.
func checkSerializable(settings map[string]any) error {
	if settings == nil {
		return nil
	}
	if _, err := json.Marshal(settings); err != nil {
		return &InvalidParameterError{
			Param:  "settings",
			Reason: "not JSON-serializable: " + err.Error(),
		}
	}
	return nil
}
