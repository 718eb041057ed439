package service

import (
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
)

type Classification int

const (
	ClassificationValid Classification = iota
	ClassificationExpired
	ClassificationReused
)

func (c Classification) String() string {
	switch c {
	case ClassificationValid:
		return "valid"
	case ClassificationExpired:
		return "expired"
	case ClassificationReused:
		return "reused"
	}
	return "unknown"
}

// ReuseDetector classifies a presented record. Any revoked record counts as
// reuse whatever the revocation reason, and revocation is checked before
// expiry. A lost network response and a stolen token look the same here;
// both are treated as reuse.
type ReuseDetector struct{}

func (ReuseDetector) Classify(token authdomain.RefreshToken, now time.Time) Classification {
	if token.IsRevoked() {
		return ClassificationReused
	}
	if token.IsExpired(now) {
		return ClassificationExpired
	}
	return ClassificationValid
}
