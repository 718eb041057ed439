package service

import (
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

const (
	outcomeRotated     = "rotated"
	outcomeRateLimited = "rate_limited"
	outcomeInvalid     = "invalid"
	outcomeExpired     = "expired"
	outcomeReused      = "reused"
	outcomeRaceLost    = "race_lost"
	outcomeTransient   = "transient"
)

func observeRotation(outcome string, start time.Time) {
	metrics.RefreshRotationsTotal.WithLabelValues(outcome).Inc()
	metrics.RefreshRotationDurationSeconds.Observe(time.Since(start).Seconds())
}

func addRefreshTokensRevoked(reason authdomain.RevocationReason, n int64) {
	if n > 0 {
		metrics.RefreshTokensRevoked.WithLabelValues(string(reason)).Add(float64(n))
	}
}

func incrementRefreshTokensIssued() {
	metrics.RefreshTokensIssued.Inc()
}

func incrementAccessTokensIssued() {
	metrics.AccessTokensIssued.Inc()
}
