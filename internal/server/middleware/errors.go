// Package middleware holds the HTTP middleware chain: request-ID
// propagation and panic recovery with the standard error envelope.
package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/piolab/piobridge/internal/errors"
)

// ErrorResponse is the envelope written by the recovery middleware.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts panics into 500 responses with the standard envelope.
// It must sit inside RequestID so the envelope carries the request ID.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeErrorResponse(w, r, http.StatusInternalServerError,
					apperrors.CodeInternalError, fmt.Sprintf("panic: %v", rec), nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for callers that chain it under
// that name.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	apperrors.WriteError(w, r, status, code, message, details)
}
