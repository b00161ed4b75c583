package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey is the context key RequestID stores the generated id under.
type requestIDKey struct{}

// RequestIDHeader is the response header every request's id is echoed on.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns a fresh UUID to every request, echoes it on the
// response, and stores it in the request context so handlers can attach it
// to error bodies and log lines. A client-supplied X-Request-Id is honored
// rather than replaced, so a reverse proxy's own correlation id survives.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id stashed by RequestID, or ""
// if the middleware wasn't applied (e.g. in a unit test calling a handler
// directly).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
