package backend

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Error codes carried in OperationResult.Code. These are the machine-readable
// taxonomy surfaced to bridge clients; "" means the call succeeded.
const (
	// CodeInvalidAddress indicates an addressing triple failed local
	// validation. Never produced by a network call.
	CodeInvalidAddress = "INVALID_ADDRESS"

	// CodeInvalidParameter indicates an operation parameter failed local
	// validation. Never produced by a network call.
	CodeInvalidParameter = "INVALID_PARAMETER"

	// CodeBackendUnreachable indicates the backend could not be reached
	// (connection refused, DNS failure).
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"

	// CodeBackendTimeout indicates the backend did not respond within the
	// configured timeout. The request may still complete server-side.
	CodeBackendTimeout = "BACKEND_TIMEOUT"

	// CodeBackendClientError indicates a 4xx response from the backend.
	CodeBackendClientError = "BACKEND_CLIENT_ERROR"

	// CodeBackendServerError indicates a 5xx response from the backend.
	CodeBackendServerError = "BACKEND_SERVER_ERROR"

	// CodeResourceUnavailable marks a failed sub-fetch in a resource
	// aggregation. Partial data from other sub-fetches is still returned.
	CodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
)

// classifyTransportError maps a transport-level failure from the HTTP client
// to an error code. HTTP responses (any status) never reach this function.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeBackendTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeBackendTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return CodeBackendTimeout
	}
	return CodeBackendUnreachable
}
