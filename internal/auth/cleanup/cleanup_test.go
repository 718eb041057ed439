package cleanup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

type mockCleaner struct {
	calls       atomic.Int32
	cleanupFunc func(ctx context.Context, retention time.Duration) (int64, error)
}

func (m *mockCleaner) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	m.calls.Add(1)
	return m.cleanupFunc(ctx, retention)
}

func TestStartRetentionCleanup_RunsUntilCancelled(t *testing.T) {
	var gotRetention atomic.Int64
	cleaner := &mockCleaner{
		cleanupFunc: func(_ context.Context, retention time.Duration) (int64, error) {
			gotRetention.Store(int64(retention))
			return 2, nil
		},
	}
	log := logger.NewWithWriter(&bytes.Buffer{}, "test", "error")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartRetentionCleanup(ctx, cleaner, 5*time.Millisecond, time.Hour, log)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for cleaner.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected cleanup loop to stop after cancel")
	}

	if cleaner.calls.Load() < 2 {
		t.Errorf("expected at least 2 runs, got %d", cleaner.calls.Load())
	}
	if time.Duration(gotRetention.Load()) != time.Hour {
		t.Errorf("expected retention 1h, got %v", time.Duration(gotRetention.Load()))
	}
}

func TestRunOnce_LogsFailure(t *testing.T) {
	cleaner := &mockCleaner{
		cleanupFunc: func(context.Context, time.Duration) (int64, error) {
			return 0, errors.New("database unavailable")
		},
	}
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "test", "debug")

	runOnce(context.Background(), cleaner, time.Hour, log)

	if !strings.Contains(buf.String(), "database unavailable") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}
