package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	schemasassets "github.com/piolab/piobridge/internal/assets/schemas"
	"github.com/piolab/piobridge/pkg/address"
	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/dispatch"
)

// errorInfo categories.
const (
	categoryValidation = "validation"
	categoryBackend    = "backend"
	categoryTransient  = "transient"
	categoryInternal   = "internal"
)

// toolHandler executes one tool call against already schema-validated
// arguments.
type toolHandler func(ctx context.Context, args map[string]any) (any, error)

type tool struct {
	desc      toolDescription
	validator *schema.Validator
	handler   toolHandler
}

// buildTools assembles the five bridge tools. Each tool's embedded JSON
// Schema is both served to clients in tools/list and compiled for argument
// validation, so the advertised contract and the enforced one cannot drift.
func (s *Server) buildTools() ([]*tool, error) {
	defs := []struct {
		name        string
		title       string
		description string
		schemaJSON  []byte
		annotations *toolAnnotations
		handler     toolHandler
	}{
		{
			name:        "start_job",
			title:       "Start a job",
			description: "Start a background job (stirring, od_reading, temperature_automation, ...) on one worker within an experiment. Optional settings are passed through to the job.",
			schemaJSON:  schemasassets.StartJobToolSchema,
			annotations: &toolAnnotations{IdempotentHint: boolPtr(false)},
			handler:     s.callStartJob,
		},
		{
			name:        "stop_job",
			title:       "Stop a job",
			description: "Stop a running job on one worker within an experiment.",
			schemaJSON:  schemasassets.StopJobToolSchema,
			annotations: &toolAnnotations{IdempotentHint: boolPtr(true)},
			handler:     s.callStopJob,
		},
		{
			name:        "update_job_settings",
			title:       "Update job settings",
			description: "Apply new settings to a running job. Settings must contain at least one key; value semantics are validated by the backend.",
			schemaJSON:  schemasassets.UpdateJobSettingsToolSchema,
			annotations: &toolAnnotations{IdempotentHint: boolPtr(true)},
			handler:     s.callUpdateJobSettings,
		},
		{
			name:        "set_led_intensity",
			title:       "Set LED intensity",
			description: "Set one LED channel (A-D) to an intensity between 0 and 100 percent. Shortcut over update_job_settings for the led_intensity job.",
			schemaJSON:  schemasassets.SetLEDIntensityToolSchema,
			annotations: &toolAnnotations{IdempotentHint: boolPtr(true)},
			handler:     s.callSetLEDIntensity,
		},
		{
			name:        "set_stirring_speed",
			title:       "Set stirring speed",
			description: "Set the stirring target RPM between 0 and 2000. Shortcut over update_job_settings for the stirring job.",
			schemaJSON:  schemasassets.SetStirringSpeedToolSchema,
			annotations: &toolAnnotations{IdempotentHint: boolPtr(true)},
			handler:     s.callSetStirringSpeed,
		},
	}

	tools := make([]*tool, 0, len(defs))
	for _, def := range defs {
		if len(def.schemaJSON) == 0 {
			return nil, fmt.Errorf("embedded schema for tool %s is empty", def.name)
		}
		validator, err := schema.NewValidator(def.schemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compiling schema for tool %s: %w", def.name, err)
		}
		tools = append(tools, &tool{
			desc: toolDescription{
				Name:        def.name,
				Title:       def.title,
				Description: def.description,
				InputSchema: json.RawMessage(def.schemaJSON),
				Annotations: def.annotations,
			},
			validator: validator,
			handler:   def.handler,
		})
	}
	return tools, nil
}

func (s *Server) handleToolsList() toolsListResult {
	descs := make([]toolDescription, 0, len(s.tools))
	for _, t := range s.tools {
		descs = append(descs, t.desc)
	}
	return toolsListResult{Tools: descs}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	t, ok := s.toolsByName[p.Name]
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "unknown tool: " + p.Name}
	}

	args := p.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	if msg, ok := validateArguments(t.validator, args); !ok {
		return toolError(categoryValidation, false, msg), nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return toolError(categoryValidation, false, "arguments must be a JSON object: "+err.Error()), nil
	}

	result, err := t.handler(ctx, decoded)
	if err != nil {
		category := classifyToolError(err)
		s.logger.Warn("tool call rejected",
			zap.String("tool", p.Name),
			zap.String("category", category),
			zap.Error(err))
		return toolError(category, false, err.Error()), nil
	}

	return toolResult(result), nil
}

// validateArguments runs the compiled JSON Schema over raw arguments and
// folds error-severity diagnostics into one message.
func validateArguments(v *schema.Validator, args json.RawMessage) (string, bool) {
	diags, err := v.ValidateJSON(args)
	if err != nil {
		return "argument validation failed: " + err.Error(), false
	}

	var msgs []string
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Pointer, d.Message))
		}
	}
	if len(msgs) > 0 {
		return "invalid arguments: " + strings.Join(msgs, "; "), false
	}
	return "", true
}

// toolResult wraps a handler result as a tools/call response. Operation
// results that carry a failed backend outcome become isError responses with
// retry metadata, while the structured content still exposes the raw status
// and body.
func toolResult(result any) toolsCallResult {
	encoded, err := json.Marshal(result)
	if err != nil {
		return toolError(categoryInternal, false, "result not serializable: "+err.Error())
	}

	out := toolsCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(encoded)}},
		StructuredContent: result,
	}
	if opResult, ok := result.(dispatch.Result); ok && !opResult.Success {
		category, retryable := classifyOperationCode(opResult.Code)
		out.IsError = true
		out.ErrorInfo = &errorInfo{Category: category, Retryable: retryable}
	}
	return out
}

func toolError(category string, retryable bool, message string) toolsCallResult {
	return toolsCallResult{
		Content:   []contentBlock{{Type: "text", Text: message}},
		IsError:   true,
		ErrorInfo: &errorInfo{Category: category, Retryable: retryable},
	}
}

// classifyToolError maps a handler error to an errorInfo category. All
// handler errors are produced before any network call.
func classifyToolError(err error) string {
	var addrErr *address.InvalidAddressError
	var paramErr *dispatch.InvalidParameterError
	if errors.As(err, &addrErr) || errors.As(err, &paramErr) {
		return categoryValidation
	}
	return categoryInternal
}

// classifyOperationCode maps a backend taxonomy code to errorInfo.
func classifyOperationCode(code string) (category string, retryable bool) {
	switch code {
	case backend.CodeBackendTimeout, backend.CodeBackendUnreachable, backend.CodeResourceUnavailable:
		return categoryTransient, true
	case backend.CodeBackendServerError:
		return categoryBackend, true
	case backend.CodeBackendClientError:
		return categoryBackend, false
	case backend.CodeInvalidAddress, backend.CodeInvalidParameter:
		return categoryValidation, false
	default:
		return categoryInternal, false
	}
}

// --- tool handlers ---

type startJobArgs struct {
	Worker     string         `json:"worker"`
	JobName    string         `json:"job_name"`
	Experiment string         `json:"experiment"`
	Settings   map[string]any `json:"settings"`
}

func (s *Server) callStartJob(ctx context.Context, args map[string]any) (any, error) {
	var p startJobArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return s.dispatcher.StartJob(ctx, p.Worker, p.JobName, p.Experiment, p.Settings)
}

type stopJobArgs struct {
	Worker     string `json:"worker"`
	JobName    string `json:"job_name"`
	Experiment string `json:"experiment"`
}

func (s *Server) callStopJob(ctx context.Context, args map[string]any) (any, error) {
	var p stopJobArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return s.dispatcher.StopJob(ctx, p.Worker, p.JobName, p.Experiment)
}

type updateJobSettingsArgs struct {
	Worker     string         `json:"worker"`
	JobName    string         `json:"job_name"`
	Experiment string         `json:"experiment"`
	Settings   map[string]any `json:"settings"`
}

func (s *Server) callUpdateJobSettings(ctx context.Context, args map[string]any) (any, error) {
	var p updateJobSettingsArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return s.dispatcher.UpdateJobSettings(ctx, p.Worker, p.JobName, p.Experiment, p.Settings)
}

type setLEDIntensityArgs struct {
	Worker     string  `json:"worker"`
	Experiment string  `json:"experiment"`
	Channel    string  `json:"channel"`
	Intensity  float64 `json:"intensity"`
}

func (s *Server) callSetLEDIntensity(ctx context.Context, args map[string]any) (any, error) {
	var p setLEDIntensityArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return s.dispatcher.SetLEDIntensity(ctx, p.Worker, p.Experiment, p.Channel, p.Intensity)
}

type setStirringSpeedArgs struct {
	Worker     string  `json:"worker"`
	Experiment string  `json:"experiment"`
	RPM        float64 `json:"rpm"`
}

func (s *Server) callSetStirringSpeed(ctx context.Context, args map[string]any) (any, error) {
	var p setStirringSpeedArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	return s.dispatcher.SetStirringSpeed(ctx, p.Worker, p.Experiment, p.RPM)
}

// decodeArgs maps schema-validated arguments onto a typed parameter struct.
// ErrorUnused is a backstop behind additionalProperties:false in the
// schemas.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return fmt.Errorf("building argument decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return &dispatch.InvalidParameterError{Param: "arguments", Reason: err.Error()}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
