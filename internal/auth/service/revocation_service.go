package service

import (
	"context"
	"errors"
	"time"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type RevocationService struct {
	store  authrepo.TokenStore
	hasher commoncrypto.TokenHasher
	clock  clock.Clock
	audit  audit.Sink
	log    *logger.Logger
}

func NewRevocationService(
	store authrepo.TokenStore,
	hasher commoncrypto.TokenHasher,
	clock clock.Clock,
	auditSink audit.Sink,
	log *logger.Logger,
) *RevocationService {
	return &RevocationService{
		store:  store,
		hasher: hasher,
		clock:  clock,
		audit:  auditSink,
		log:    log,
	}
}

// RevokeFamily revokes every live record of the family and returns how many
// changed state. A second call on the same family returns 0.
func (s *RevocationService) RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason) (int64, error) {
	var userID string
	family, err := s.store.FindFamily(ctx, familyID)
	switch {
	case err == nil:
		userID = family.UserID
	case !errors.Is(err, authrepo.ErrFamilyNotFound):
		s.log.WithFields(ctx, logger.Fields{
			"family_id": familyID,
			"action":    "family_owner_lookup_failed",
		}).Warnf("failed to look up family owner: %v", err)
	}
	return s.revokeFamily(ctx, familyID, userID, reason)
}

func (s *RevocationService) revokeFamily(ctx context.Context, familyID, userID string, reason authdomain.RevocationReason) (int64, error) {
	now := s.clock.Now()
	n, err := s.store.RevokeFamily(ctx, familyID, reason, now)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"family_id": familyID,
			"reason":    string(reason),
			"action":    "family_revoke_failed",
		}).Errorf("failed to revoke family: %v", err)
		return 0, transientError(err)
	}

	addRefreshTokensRevoked(reason, n)
	if n > 0 {
		s.log.WithFields(ctx, logger.Fields{
			"family_id": familyID,
			"reason":    string(reason),
			"revoked":   n,
			"action":    "family_revoked",
		}).Info("session family revoked")
		s.audit.Emit(ctx, audit.Event{
			Kind:      audit.KindFamilyRevoked,
			UserID:    userID,
			FamilyID:  familyID,
			Timestamp: now,
			RequestID: audit.RequestIDFromContext(ctx),
			Reason:    string(reason),
			Count:     n,
		})
	}
	return n, nil
}

func (s *RevocationService) RevokeAllForUser(ctx context.Context, userID string, reason authdomain.RevocationReason) (int64, error) {
	now := s.clock.Now()
	n, err := s.store.RevokeAllForUser(ctx, userID, reason, now)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"reason":  string(reason),
			"action":  "user_revoke_failed",
		}).Errorf("failed to revoke user sessions: %v", err)
		return 0, transientError(err)
	}

	addRefreshTokensRevoked(reason, n)
	s.log.WithFields(ctx, logger.Fields{
		"user_id": userID,
		"reason":  string(reason),
		"revoked": n,
		"action":  "user_revoked",
	}).Info("all user sessions revoked")
	s.audit.Emit(ctx, audit.Event{
		Kind:      audit.KindUserRevoked,
		UserID:    userID,
		Timestamp: now,
		RequestID: audit.RequestIDFromContext(ctx),
		Reason:    string(reason),
		Count:     n,
	})
	return n, nil
}

// RevokeByToken revokes the family the secret belongs to. An unknown or
// malformed secret is not an error, so logout never reveals whether a
// secret existed.
func (s *RevocationService) RevokeByToken(ctx context.Context, secret string, reason authdomain.RevocationReason) (int64, error) {
	if !commoncrypto.IsWellFormedSecret(secret) {
		return 0, nil
	}

	token, err := s.store.FindByTokenHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		if errors.Is(err, authrepo.ErrTokenNotFound) {
			return 0, nil
		}
		return 0, transientError(err)
	}

	return s.revokeFamily(ctx, token.FamilyID, token.UserID, reason)
}

// CleanupExpired moves naturally expired records to their terminal state,
// then deletes records revoked before now minus retention, then deletes
// families left without records. Active records are never touched. It
// returns the number of records deleted.
func (s *RevocationService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	now := s.clock.Now()

	expired, err := s.store.MarkExpiredBefore(ctx, now)
	if err != nil {
		return 0, transientError(err)
	}
	addRefreshTokensRevoked(authdomain.ReasonExpired, expired)

	deleted, err := s.store.DeleteRevokedBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, transientError(err)
	}

	families, err := s.store.DeleteEmptyFamilies(ctx)
	if err != nil {
		return deleted, transientError(err)
	}

	if deleted > 0 {
		metrics.RefreshTokensCleanupDeleted.Add(float64(deleted))
	}
	if expired > 0 || deleted > 0 || families > 0 {
		s.log.WithFields(ctx, logger.Fields{
			"expired":          expired,
			"deleted":          deleted,
			"families_deleted": families,
			"action":           "retention_cleanup",
		}).Info("refresh token retention cleanup finished")
		s.audit.Emit(ctx, audit.Event{
			Kind:      audit.KindCleanup,
			Timestamp: now,
			Count:     deleted,
		})
	}
	return deleted, nil
}
