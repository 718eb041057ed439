package repository

import (
	"context"
	"errors"
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
)

var (
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrFamilyNotFound     = errors.New("token family not found")
	ErrFamilyLimitReached = errors.New("active family limit reached")
	ErrRotationConflict   = errors.New("refresh token was already retired")
	ErrDuplicateToken     = errors.New("refresh token hash or jti already exists")
)

// RotateParams retires OldID in favour of Successor. The successor must
// already carry its id, hash, jti, family and sequence.
type RotateParams struct {
	OldID     string
	Successor authdomain.RefreshToken
	Now       time.Time
}

// TokenStore is the only place refresh token state lives. Every write is a
// conditional, all-or-nothing unit: Rotate either retires the old record and
// inserts the successor or changes nothing, and returns ErrRotationConflict
// when another caller retired the record first.
type TokenStore interface {
	CreateFamily(ctx context.Context, family authdomain.TokenFamily, first authdomain.RefreshToken, maxActive int) error
	FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	FindFamily(ctx context.Context, familyID string) (authdomain.TokenFamily, error)
	ListActiveFamilies(ctx context.Context, userID string, now time.Time) ([]authdomain.FamilySummary, error)

	Rotate(ctx context.Context, params RotateParams) error
	MarkExpired(ctx context.Context, tokenID string, now time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, reason authdomain.RevocationReason, now time.Time) (int64, error)

	MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEmptyFamilies(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// IsOutcome reports store errors that describe the data rather than a
// backend failure.
func IsOutcome(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrFamilyNotFound) ||
		errors.Is(err, ErrFamilyLimitReached) ||
		errors.Is(err, ErrRotationConflict) ||
		errors.Is(err, ErrDuplicateToken)
}
