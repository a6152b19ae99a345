// Package backend issues HTTP requests to the bioreactor control API and
// normalizes every outcome — transport failure or HTTP response — into an
// OperationResult.
//
// The client never retries: run/stop/update are not idempotent-safe to
// repeat blindly, so retry policy belongs to callers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the control API root on a leader unit.
	DefaultBaseURL = "http://localhost/api"

	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20

	// messageTruncateLen caps the message derived from a raw body.
	messageTruncateLen = 500
)

// Config configures the backend client.
type Config struct {
	// BaseURL is the API root, e.g. "http://pioreactor.local/api".
	// Default: DefaultBaseURL.
	BaseURL string

	// Timeout is the per-request deadline. Default: DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second to the backend.
	// Zero means unlimited.
	RateLimit float64
}

// OperationResult is the normalized outcome of a single backend call.
//
// Created per call and never mutated afterwards. Code is "" on success and
// one of the Code* constants otherwise.
type OperationResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RawStatus int    `json:"raw_status,omitempty"`
	RawBody   string `json:"raw_body,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Client talks to the bioreactor control API. Safe for concurrent use; the
// underlying connection pool and rate limiter carry no correctness-relevant
// state.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a backend client. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs one HTTP call against the backend and normalizes the
// outcome. The path is joined to the configured base URL; callers construct
// paths through pkg/address, never by hand.
//
// A nil body sends no payload for GET and an empty JSON object for other
// methods, matching the control API's expectation of a JSON body on PATCH.
func (c *Client) Request(ctx context.Context, method, path string, body any) OperationResult {
	callID := uuid.New().String()

	payload, err := encodeBody(method, body)
	if err != nil {
		return OperationResult{
			Success: false,
			Message: fmt.Sprintf("settings are not JSON-serializable: %v", err),
			Code:    CodeInvalidParameter,
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return OperationResult{
				Success: false,
				Message: "rate limiter wait cancelled: " + err.Error(),
				Code:    classifyTransportError(err),
			}
		}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return OperationResult{
			Success: false,
			Message: "building request: " + err.Error(),
			Code:    CodeInvalidParameter,
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("backend request",
		zap.String("call_id", callID),
		zap.String("method", method),
		zap.String("url", url))

	resp, err := c.http.Do(req)
	if err != nil {
		code := classifyTransportError(err)
		c.logger.Warn("backend transport failure",
			zap.String("call_id", callID),
			zap.String("url", url),
			zap.String("code", code),
			zap.Error(err))
		msg := "backend unreachable: " + err.Error()
		if code == CodeBackendTimeout {
			msg = "backend did not respond within the configured timeout"
		}
		return OperationResult{Success: false, Message: msg, Code: code}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		// Headers arrived but the body did not; classify like a transport
		// failure so callers see a consistent taxonomy.
		return OperationResult{
			Success:   false,
			Message:   "reading response body: " + readErr.Error(),
			RawStatus: resp.StatusCode,
			Code:      classifyTransportError(readErr),
		}
	}

	result := normalizeResponse(resp.StatusCode, raw)
	c.logger.Debug("backend response",
		zap.String("call_id", callID),
		zap.Int("status", resp.StatusCode),
		zap.Bool("success", result.Success),
		zap.String("code", result.Code))
	return result
}

// encodeBody marshals a JSON request body. GET requests carry no body;
// mutating requests with a nil body send an empty JSON object.
func encodeBody(method string, body any) (io.Reader, error) {
	if method == http.MethodGet {
		return nil, nil
	}
	if body == nil {
		body = map[string]any{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// normalizeResponse maps an HTTP status and body to an OperationResult.
func normalizeResponse(status int, raw []byte) OperationResult {
	// RawBody keeps the full (read-capped) body so aggregation callers can
	// parse listings; only the derived message is truncated.
	result := OperationResult{
		RawStatus: status,
		RawBody:   string(raw),
	}

	switch {
	case status >= 200 && status < 300:
		result.Success = true
		result.Message = bodyMessage(raw, "status", "message")
	case status >= 400 && status < 500:
		result.Code = CodeBackendClientError
		result.Message = bodyMessage(raw, "error", "message")
	case status >= 500:
		result.Code = CodeBackendServerError
		result.Message = "backend server error: " + bodyMessage(raw, "error", "message")
	default:
		// 1xx/3xx are unexpected from this API; treat as a client-side
		// protocol mismatch rather than success.
		result.Code = CodeBackendClientError
		result.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return result
}

// bodyMessage derives a human-readable message from a response body: a
// best-effort JSON parse of the named string fields, falling back to the
// raw body truncated to messageTruncateLen.
func bodyMessage(raw []byte, fields ...string) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		for _, field := range fields {
			if v, ok := parsed[field].(string); ok && v != "" {
				return v
			}
		}
	}
	return truncate(trimmed, messageTruncateLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
