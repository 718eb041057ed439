package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call. RetryAfter is set only when the
// attempt was denied.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a sliding-window log over any number of keys. An attempt is
// allowed only if every key is under the limit, and is then recorded against
// every key. Denied attempts are not recorded.
type Limiter interface {
	Allow(ctx context.Context, keys ...string) (Decision, error)
}

func UserKey(userID string) string {
	return "user:" + userID
}

func FamilyKey(familyID string) string {
	return "family:" + familyID
}

func IPKey(ipHash string) string {
	return "ip:" + ipHash
}
