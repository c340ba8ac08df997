package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveWithRequestID(t *testing.T, inbound string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var ctxID string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, ctxID
}

func TestRequestIDGenerated(t *testing.T) {
	rec, ctxID := serveWithRequestID(t, "")

	assert.NotEmpty(t, ctxID)
	assert.Equal(t, ctxID, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReusesCallerHeader(t *testing.T) {
	rec, ctxID := serveWithRequestID(t, "qa-run-42")

	assert.Equal(t, "qa-run-42", ctxID)
	assert.Equal(t, "qa-run-42", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	oversized := strings.Repeat("x", maxRequestIDLen+1)
	rec, ctxID := serveWithRequestID(t, oversized)

	assert.NotEqual(t, oversized, ctxID)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
