package cleanup

import (
	"context"
	"time"

	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

type RetentionCleaner interface {
	CleanupExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// StartRetentionCleanup runs the cleaner every interval until ctx is done.
// Failures are logged and the next tick tries again.
func StartRetentionCleanup(ctx context.Context, cleaner RetentionCleaner, interval, retention time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, cleaner, retention, log)
		}
	}
}

func runOnce(ctx context.Context, cleaner RetentionCleaner, retention time.Duration, log *logger.Logger) {
	deleted, err := cleaner.CleanupExpired(ctx, retention)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Errorf("refresh token cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Infof("refresh token cleanup: deleted %d records past retention", deleted)
	}
}
