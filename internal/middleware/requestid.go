package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

/* Header carrying the request ID in and out of the service */
const RequestIDHeader = "X-Backoffice-Request-Id"

// Inbound IDs longer than this are replaced, not truncated
const maxRequestIDLen = 64

/* Context key type for type-safe context values */
type requestIDKeyType string

const RequestIDKey requestIDKeyType = "request_id"

/* RequestIDMiddleware tags each request with an ID, reusing the caller's
   when it carries one, and echoes it on the response */
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > maxRequestIDLen {
				requestID = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

/* GetRequestID gets request ID from context */
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
