package repository

import (
	"context"
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/common/resilience"
)

// ResilientTokenStore routes every call through a circuit breaker. Outcome
// errors such as ErrRotationConflict pass through without counting as
// backend failures.
type ResilientTokenStore struct {
	inner   TokenStore
	breaker *resilience.CircuitBreaker
}

func NewResilientTokenStore(inner TokenStore, config resilience.CircuitBreakerConfig) *ResilientTokenStore {
	config.IsFailure = func(err error) bool {
		return err != nil && !IsOutcome(err)
	}
	return &ResilientTokenStore{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(config),
	}
}

func (s *ResilientTokenStore) CreateFamily(ctx context.Context, family authdomain.TokenFamily, first authdomain.RefreshToken, maxActive int) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.inner.CreateFamily(ctx, family, first, maxActive)
	})
}

func (s *ResilientTokenStore) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	var token authdomain.RefreshToken
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		token, err = s.inner.FindByTokenHash(ctx, hash)
		return err
	})
	return token, err
}

func (s *ResilientTokenStore) FindFamily(ctx context.Context, familyID string) (authdomain.TokenFamily, error) {
	var family authdomain.TokenFamily
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		family, err = s.inner.FindFamily(ctx, familyID)
		return err
	})
	return family, err
}

func (s *ResilientTokenStore) ListActiveFamilies(ctx context.Context, userID string, now time.Time) ([]authdomain.FamilySummary, error) {
	var summaries []authdomain.FamilySummary
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		summaries, err = s.inner.ListActiveFamilies(ctx, userID, now)
		return err
	})
	return summaries, err
}

func (s *ResilientTokenStore) Rotate(ctx context.Context, params RotateParams) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.inner.Rotate(ctx, params)
	})
}

func (s *ResilientTokenStore) MarkExpired(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var marked bool
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.inner.MarkExpired(ctx, tokenID, now)
		return err
	})
	return marked, err
}

func (s *ResilientTokenStore) RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	return s.callCount(ctx, func(ctx context.Context) (int64, error) {
		return s.inner.RevokeFamily(ctx, familyID, reason, now)
	})
}

func (s *ResilientTokenStore) RevokeAllForUser(ctx context.Context, userID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	return s.callCount(ctx, func(ctx context.Context) (int64, error) {
		return s.inner.RevokeAllForUser(ctx, userID, reason, now)
	})
}

func (s *ResilientTokenStore) MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	return s.callCount(ctx, func(ctx context.Context) (int64, error) {
		return s.inner.MarkExpiredBefore(ctx, now)
	})
}

func (s *ResilientTokenStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.callCount(ctx, func(ctx context.Context) (int64, error) {
		return s.inner.DeleteRevokedBefore(ctx, cutoff)
	})
}

func (s *ResilientTokenStore) DeleteEmptyFamilies(ctx context.Context) (int64, error) {
	return s.callCount(ctx, s.inner.DeleteEmptyFamilies)
}

func (s *ResilientTokenStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *ResilientTokenStore) callCount(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var n int64
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		n, err = fn(ctx)
		return err
	})
	return n, err
}
