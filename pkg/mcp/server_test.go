package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/dispatch"
	"github.com/piolab/piobridge/pkg/jobschema"
	"github.com/piolab/piobridge/pkg/resources"
)

// fakeBackend serves canned results per path and records every call. It
// stands in for *backend.Client behind both the dispatcher and the
// aggregator.
type fakeBackend struct {
	results map[string]backend.OperationResult
	calls   []string
	bodies  []string
}

func (f *fakeBackend) Request(_ context.Context, method, path string, body any) backend.OperationResult {
	f.calls = append(f.calls, method+" "+path)
	encoded, _ := json.Marshal(body)
	f.bodies = append(f.bodies, string(encoded))
	if r, ok := f.results[path]; ok {
		return r
	}
	return backend.OperationResult{Success: true, RawStatus: http.StatusOK, RawBody: `{"status":"ok"}`, Message: "ok"}
}

func newTestServer(t *testing.T, fake *fakeBackend) *Server {
	t.Helper()
	table, err := jobschema.Load()
	require.NoError(t, err)

	d := dispatch.New(fake, table, dispatch.Config{}, nil)
	a := resources.New(fake, table, resources.Config{}, nil)
	s, err := New(d, a, Config{Name: "piobridge", Version: "test"}, nil)
	require.NoError(t, err)
	return s
}

// handle sends one raw message and decodes the JSON-RPC envelope.
func handle(t *testing.T, s *Server, raw string) (json.RawMessage, *rpcError) {
	t.Helper()
	resp := s.HandleMessage(context.Background(), []byte(raw))
	require.NotNil(t, resp)

	var envelope struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp, &envelope))
	assert.Equal(t, "2.0", envelope.JSONRPC)
	return envelope.Result, envelope.Error
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test"}}}`)
	require.Nil(t, rpcErr)
	require.NotNil(t, result)
}

func callTool(t *testing.T, s *Server, name, args string) toolsCallResult {
	t.Helper()
	raw := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
	result, rpcErr := handle(t, s, raw)
	require.Nil(t, rpcErr)

	var out toolsCallResult
	require.NoError(t, json.Unmarshal(result, &out))
	return out
}

func TestInitializeHandshake(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"inspector","version":"1.0"}}}`)
	require.Nil(t, rpcErr)

	var init initializeResult
	require.NoError(t, json.Unmarshal(result, &init))
	assert.Equal(t, protocolVersion, init.ProtocolVersion)
	assert.Equal(t, "piobridge", init.ServerInfo.Name)
	assert.NotNil(t, init.Capabilities.Tools)
	assert.NotNil(t, init.Capabilities.Resources)
	assert.NotNil(t, init.Capabilities.Prompts)
}

func TestMethodsRequireInitialization(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidRequest, rpcErr.Code)

	// ping works pre-initialization.
	_, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Nil(t, rpcErr)
}

func TestParseErrorAndUnknownMethod(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	_, rpcErr := handle(t, s, `{not json`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeParseError, rpcErr.Code)

	_, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"no/such"}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)

	_, rpcErr = handle(t, s, `{"jsonrpc":"1.0","id":4,"method":"ping"}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidRequest, rpcErr.Code)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, resp)
}

func TestToolsListAdvertisesAllTools(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, rpcErr)

	var list toolsListResult
	require.NoError(t, json.Unmarshal(result, &list))

	names := make([]string, 0, len(list.Tools))
	for _, tl := range list.Tools {
		names = append(names, tl.Name)
		assert.NotEmpty(t, tl.InputSchema, "tool %s must carry its schema", tl.Name)
		assert.NotEmpty(t, tl.Description)
	}
	assert.Equal(t, []string{"start_job", "stop_job", "update_job_settings", "set_led_intensity", "set_stirring_speed"}, names)
}

func TestToolsCallStartJobDispatchesOnce(t *testing.T) {
	fake := &fakeBackend{}
	s := newTestServer(t, fake)
	initialize(t, s)

	out := callTool(t, s, "start_job", `{"worker":"pio01","job_name":"stirring","experiment":"exp1","settings":{"target_rpm":500}}`)

	assert.False(t, out.IsError)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "PATCH /units/pio01/jobs/run/job_name/stirring/experiments/exp1", fake.calls[0])

	structured, err := json.Marshal(out.StructuredContent)
	require.NoError(t, err)
	var opResult dispatch.Result
	require.NoError(t, json.Unmarshal(structured, &opResult))
	assert.True(t, opResult.Success)
	assert.Equal(t, "pio01", opResult.Address.Worker)
}

func TestToolsCallSchemaValidationRejectsBeforeDispatch(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"missing worker", "start_job", `{"job_name":"stirring","experiment":"exp1"}`},
		{"wrong type", "set_stirring_speed", `{"worker":"pio01","experiment":"exp1","rpm":"fast"}`},
		{"extra key", "stop_job", `{"worker":"pio01","job_name":"stirring","experiment":"exp1","bogus":1}`},
		{"empty settings", "update_job_settings", `{"worker":"pio01","job_name":"stirring","experiment":"exp1","settings":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{}
			s := newTestServer(t, fake)
			initialize(t, s)

			out := callTool(t, s, tt.tool, tt.args)

			assert.True(t, out.IsError)
			require.NotNil(t, out.ErrorInfo)
			assert.Equal(t, categoryValidation, out.ErrorInfo.Category)
			assert.False(t, out.ErrorInfo.Retryable)
			assert.Empty(t, fake.calls, "invalid arguments must never dispatch")
		})
	}
}

func TestToolsCallShortcutRangeRejectedLocally(t *testing.T) {
	fake := &fakeBackend{}
	s := newTestServer(t, fake)
	initialize(t, s)

	out := callTool(t, s, "set_stirring_speed", `{"worker":"pio01","experiment":"exp1","rpm":2001}`)

	assert.True(t, out.IsError)
	require.NotNil(t, out.ErrorInfo)
	assert.Equal(t, categoryValidation, out.ErrorInfo.Category)
	assert.Empty(t, fake.calls)
}

func TestToolsCallLEDShortcutUsesChannelAsSettingsKey(t *testing.T) {
	fake := &fakeBackend{}
	s := newTestServer(t, fake)
	initialize(t, s)

	out := callTool(t, s, "set_led_intensity", `{"worker":"pio01","experiment":"exp1","channel":"B","intensity":75}`)

	assert.False(t, out.IsError)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "PATCH /units/pio01/jobs/update/job_name/led_intensity/experiments/exp1", fake.calls[0])
	assert.JSONEq(t, `{"B":75}`, fake.bodies[0])
}

func TestToolsCallBackendFailureCarriesErrorInfo(t *testing.T) {
	tests := []struct {
		name          string
		result        backend.OperationResult
		wantCategory  string
		wantRetryable bool
	}{
		{
			name:          "unreachable is transient",
			result:        backend.OperationResult{Success: false, Message: "backend unreachable: refused", Code: backend.CodeBackendUnreachable},
			wantCategory:  categoryTransient,
			wantRetryable: true,
		},
		{
			name:          "4xx is a firm backend verdict",
			result:        backend.OperationResult{Success: false, Message: "job not found", RawStatus: 404, Code: backend.CodeBackendClientError},
			wantCategory:  categoryBackend,
			wantRetryable: false,
		},
		{
			name:          "5xx is retryable backend",
			result:        backend.OperationResult{Success: false, Message: "backend server error: down", RawStatus: 500, Code: backend.CodeBackendServerError},
			wantCategory:  categoryBackend,
			wantRetryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{results: map[string]backend.OperationResult{
				"/units/pio01/jobs/stop/job_name/stirring/experiments/exp1": tt.result,
			}}
			s := newTestServer(t, fake)
			initialize(t, s)

			out := callTool(t, s, "stop_job", `{"worker":"pio01","job_name":"stirring","experiment":"exp1"}`)

			assert.True(t, out.IsError)
			require.NotNil(t, out.ErrorInfo)
			assert.Equal(t, tt.wantCategory, out.ErrorInfo.Category)
			assert.Equal(t, tt.wantRetryable, out.ErrorInfo.Retryable)
			// The structured result still carries the full backend verdict.
			structured, err := json.Marshal(out.StructuredContent)
			require.NoError(t, err)
			assert.Contains(t, string(structured), tt.result.Code)
		})
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	_, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"reboot_cluster","arguments":{}}}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestResourcesListAndRead(t *testing.T) {
	fake := &fakeBackend{results: map[string]backend.OperationResult{
		"/experiments": {Success: true, RawStatus: 200, RawBody: `[{"experiment":"exp1"}]`},
	}}
	s := newTestServer(t, fake)
	initialize(t, s)

	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	require.Nil(t, rpcErr)
	var list resourcesListResult
	require.NoError(t, json.Unmarshal(result, &list))
	uris := make([]string, 0, len(list.Resources))
	for _, r := range list.Resources {
		uris = append(uris, r.URI)
	}
	assert.Equal(t, []string{uriExperiments, uriWorkers, uriJobSchemas, uriOverview, uriSystemGuide}, uris)

	result, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"pioreactor://experiments"}}`)
	require.Nil(t, rpcErr)
	var read resourcesReadResult
	require.NoError(t, json.Unmarshal(result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, uriExperiments, read.Contents[0].URI)
	assert.Equal(t, mimeJSON, read.Contents[0].MIMEType)

	var snap resources.Snapshot
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &snap))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "exp1", snap.Items[0]["experiment"])
}

func TestResourcesReadGuideAndUnknown(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"pioreactor://system_guide"}}`)
	require.Nil(t, rpcErr)
	var read resourcesReadResult
	require.NoError(t, json.Unmarshal(result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, mimeMarkdown, read.Contents[0].MIMEType)
	assert.Contains(t, read.Contents[0].Text, "set_stirring_speed")

	_, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"pioreactor://nope"}}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestPromptsListAndGet(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	initialize(t, s)

	result, rpcErr := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"prompts/list"}`)
	require.Nil(t, rpcErr)
	var list promptsListResult
	require.NoError(t, json.Unmarshal(result, &list))
	require.Len(t, list.Prompts, 1)
	assert.Equal(t, "talk_to_pio", list.Prompts[0].Name)

	result, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"prompts/get","params":{"name":"talk_to_pio"}}`)
	require.Nil(t, rpcErr)
	var got promptsGetResult
	require.NoError(t, json.Unmarshal(result, &got))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content.Text, "pioreactor://overview")

	_, rpcErr = handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"prompts/get","params":{"name":"nope"}}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestRunServesNewlineDelimitedMessages(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"

	var output bytes.Buffer
	err := s.Run(context.Background(), strings.NewReader(input), &output)
	require.NoError(t, err)

	// Two requests, one notification: exactly two response lines.
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Equal(t, "2.0", resp["jsonrpc"])
	}
}
