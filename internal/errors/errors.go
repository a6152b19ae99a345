// Package errors defines the HTTP error envelope shared by every JSON
// endpoint, plus the request-ID plumbing the envelope carries.
package errors

import (
	"context"
	"encoding/json"
	"net/http"
)

// Stable error codes carried in HTTP error envelopes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadRequest         = "BAD_REQUEST"
)

// HTTPErrorResponse is the JSON envelope written for every HTTP-level error.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail carries the machine-readable error payload.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID stores a request ID on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request ID stored on the context, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WriteError writes the standard error envelope. The request ID, when
// present on the request context, is echoed into the envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		resp.Error.RequestID = RequestIDFrom(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondWithError maps an unclassified error to a 500 envelope. Handlers
// with a more specific verdict call WriteError directly.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	message := "internal server error"
	if err != nil {
		message = err.Error()
	}
	WriteError(w, r, http.StatusInternalServerError, CodeInternalError, message, nil)
}

// NotFoundHandler is the router-level 404 handler.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, "resource not found", nil)
}

// MethodNotAllowedHandler is the router-level 405 handler.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil)
}
