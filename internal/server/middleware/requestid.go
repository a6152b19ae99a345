package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/piolab/piobridge/internal/errors"
)

// requestIDHeader is honored when the caller supplies its own ID.
const requestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to the context and echoes it on the
// response. A caller-supplied X-Request-ID is preserved for end-to-end
// tracing; otherwise a fresh UUID is assigned.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(apperrors.WithRequestID(r.Context(), id)))
	})
}
