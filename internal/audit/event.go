package audit

import (
	"context"
	"time"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

type Kind string

const (
	KindRotated             Kind = "ROTATED"
	KindReuseDetected       Kind = "REUSE_DETECTED"
	KindFamilyRevoked       Kind = "FAMILY_REVOKED"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindExpired             Kind = "EXPIRED"
	KindFamilyCreated       Kind = "FAMILY_CREATED"
	KindFamilyLimitExceeded Kind = "FAMILY_LIMIT_EXCEEDED"
	KindInvalidToken        Kind = "INVALID_TOKEN"
	KindUserRevoked         Kind = "USER_REVOKED"
	KindCleanup             Kind = "CLEANUP"
)

// Event is one security-relevant fact. It never carries a secret, a token
// hash or a raw ip address.
type Event struct {
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	FamilyID  string    `json:"family_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	IPHash    string    `json:"ip_hash,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Count     int64     `json:"count,omitempty"`
}

// RequestIDFromContext returns the trace id set by the HTTP layer.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(constants.TraceIDKey).(string)
	return id
}
