package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
	commonerrors "github.com/AlibekovAA/session-guard/internal/common/errors"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.1"}, "1.1.1.1:1234", "10.0.0.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.2, 10.0.0.3"}, "1.1.1.1:1234", "10.0.0.2"},
		{"remote", nil, "192.168.1.5:4444", "192.168.1.5"},
		{"remote ipv6", nil, "[::1]:4444", "::1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Error("expected no token without header")
	}

	r.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(r)
	if !ok || token != "abc" {
		t.Errorf("expected abc, got %q (%v)", token, ok)
	}
}

func TestTraceIDMiddleware_PropagatesHeader(t *testing.T) {
	var seen string
	h := TraceIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(constants.TraceIDKey).(string)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Trace-ID", "trace-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "trace-123" {
		t.Errorf("expected trace-123 in context, got %q", seen)
	}
	if w.Header().Get("X-Trace-ID") != "trace-123" {
		t.Error("expected trace id echoed in response header")
	}
}

func TestHandleError_DomainError(t *testing.T) {
	log := logger.NewWithWriter(&strings.Builder{}, "test", "debug")
	r := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	w := httptest.NewRecorder()

	HandleError(w, r, commonerrors.ErrInvalidPayload.WithCause(errors.New("bad")), log)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if env.Code != "INVALID_PAYLOAD" {
		t.Errorf("expected INVALID_PAYLOAD, got %s", env.Code)
	}
}

func TestHandleError_UnknownErrorIsInternal(t *testing.T) {
	log := logger.NewWithWriter(&strings.Builder{}, "test", "info")
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()

	HandleError(w, r, errors.New("boom"), log)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("expected internal error detail not to leak")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	log := logger.NewWithWriter(&strings.Builder{}, "test", "info")
	h := RecoveryMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestMaxRequestSizeMiddleware(t *testing.T) {
	h := MaxRequestSizeMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long body")))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	h := rl.Middleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK {
		t.Errorf("expected first request allowed, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request limited, got %d", second.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthCheck{
		"db": func(ctx context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	h = HealthHandler(map[string]HealthCheck{
		"db": func(ctx context.Context) error { return errors.New("down") },
	})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
