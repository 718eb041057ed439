package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	commonerrors "github.com/AlibekovAA/session-guard/internal/common/errors"
)

var errBackend = errors.New("backend down")
var errDomain = errors.New("not found")

func newTestBreaker(threshold int32, resetAfter time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  threshold,
		Timeout:    time.Second,
		ResetAfter: resetAfter,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errDomain)
		},
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)
	fail := func(context.Context) error { return errBackend }

	for i := 0; i < 2; i++ {
		if err := cb.Call(context.Background(), fail); !errors.Is(err, errBackend) {
			t.Fatalf("expected backend error, got %v", err)
		}
	}

	called := false
	err := cb.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, commonerrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("expected call to be rejected while open")
	}
}

func TestCircuitBreaker_DomainErrorsDoNotTrip(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)

	for i := 0; i < 5; i++ {
		_ = cb.Call(context.Background(), func(context.Context) error { return errDomain })
	}

	if cb.IsOpen() {
		t.Error("expected breaker to stay closed on domain errors")
	}
}

func TestCircuitBreaker_ResetsAfterWindow(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)
	_ = cb.Call(context.Background(), func(context.Context) error { return errBackend })

	if !cb.IsOpen() {
		t.Fatal("expected breaker to be open")
	}

	time.Sleep(20 * time.Millisecond)

	if cb.IsOpen() {
		t.Error("expected breaker to close after reset window")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)
	_ = cb.Call(context.Background(), func(context.Context) error { return errBackend })
	_ = cb.Call(context.Background(), func(context.Context) error { return nil })
	_ = cb.Call(context.Background(), func(context.Context) error { return errBackend })

	if cb.IsOpen() {
		t.Error("expected success to reset the failure count")
	}
}
