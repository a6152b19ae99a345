// Package mcp implements the Model Context Protocol surface of the bridge:
// JSON-RPC 2.0 over newline-delimited stdio or a single-message HTTP entry
// point, exposing bioreactor job control as tools and system state as
// resources.
//
// One request maps to at most one backend call. Protocol-level errors
// (unknown method, malformed JSON) use JSON-RPC error responses; tool-level
// failures are successful responses carrying isError plus structured
// errorInfo, per MCP semantics.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/piolab/piobridge/pkg/dispatch"
	"github.com/piolab/piobridge/pkg/resources"
)

// maxLineBytes bounds a single stdio frame.
const maxLineBytes = 4 << 20

// Config configures the MCP server identity.
type Config struct {
	// Name is the server name reported during initialization.
	Name string

	// Version is the server version reported during initialization.
	Version string
}

// Server handles MCP messages. Safe for concurrent use: all per-server
// state is immutable after New apart from the initialized flag.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	aggregator  *resources.Aggregator
	info        serverInfo
	logger      *zap.Logger
	tools       []*tool
	toolsByName map[string]*tool
	resources   []resourceEntry
	prompts     []promptEntry
	initialized atomic.Bool
}

// New creates a Server. It compiles the embedded tool schemas; a broken
// embedded asset surfaces here rather than on the first call. A nil logger
// disables logging.
func New(dispatcher *dispatch.Dispatcher, aggregator *resources.Aggregator, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		dispatcher: dispatcher,
		aggregator: aggregator,
		info:       serverInfo{Name: cfg.Name, Version: cfg.Version},
		logger:     logger,
	}

	tools, err := s.buildTools()
	if err != nil {
		return nil, err
	}
	s.tools = tools
	s.toolsByName = make(map[string]*tool, len(tools))
	for _, t := range tools {
		s.toolsByName[t.desc.Name] = t
	}

	s.resources = s.buildResources()
	s.prompts = buildPrompts()
	return s, nil
}

// Run serves newline-delimited JSON-RPC messages from input until EOF or
// context cancellation. Responses are written one per line.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.HandleMessage(ctx, line)
		if resp == nil {
			continue
		}
		if _, err := output.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// HandleMessage processes one raw JSON-RPC message and returns the marshaled
// response, or nil when the message is a notification. Both transports
// (stdio and HTTP POST) funnel through here.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(errorResponse(nil, codeParseError, "parse error: invalid JSON"))
	}
	if req.JSONRPC != "2.0" {
		return marshalResponse(errorResponse(req.ID, codeInvalidRequest, "invalid request: jsonrpc must be \"2.0\""))
	}

	s.logger.Debug("mcp message", zap.String("method", req.Method), zap.Bool("notification", req.isNotification()))

	result, rpcErr := s.dispatchMethod(ctx, &req)

	if req.isNotification() {
		return nil
	}
	if rpcErr != nil {
		return marshalResponse(errorResponse(req.ID, rpcErr.Code, rpcErr.Message))
	}
	return marshalResponse(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatchMethod(ctx context.Context, req *request) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.Params)
	case "ping":
		return map[string]any{}, nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	}

	if !s.initialized.Load() {
		return nil, &rpcError{Code: codeInvalidRequest, Message: "server not initialized: send initialize first"}
	}

	switch req.Method {
	case "tools/list":
		return s.handleToolsList(), nil
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	case "resources/list":
		return s.handleResourcesList(), nil
	case "resources/read":
		return s.handleResourcesRead(ctx, req.Params)
	case "prompts/list":
		return s.handlePromptsList(), nil
	case "prompts/get":
		return s.handlePromptsGet(req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *rpcError) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}

	s.initialized.Store(true)
	s.logger.Info("client initialized",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("requested_protocol", p.ProtocolVersion))

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools:     &toolCapability{},
			Resources: &resourceCapability{},
			Prompts:   &promptCapability{},
		},
		ServerInfo: s.info,
	}, nil
}

func marshalResponse(resp response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Result types are all marshal-safe by construction; this guards
		// against future regressions without crashing the transport.
		fallback := errorResponse(resp.ID, codeInternalError, "internal error: response not serializable")
		data, _ = json.Marshal(fallback)
	}
	return data
}

func errorResponse(id json.RawMessage, code int, message string) response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}
