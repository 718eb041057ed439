package service

import (
	"context"
	"errors"
	"time"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/auth/ratelimit"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

// RaceLossPolicy decides what happens to a caller whose conditional retire
// matched zero rows because another caller got there first.
type RaceLossPolicy string

const (
	RaceLossRevokeFamily RaceLossPolicy = "revoke_family"
	RaceLossReject       RaceLossPolicy = "reject"
)

// RotationContext is request metadata. The hints only choose rate-limit
// keys; none of them is trusted for authorization. The family hint comes
// from a client cookie, so the ip key is always checked alongside it.
type RotationContext struct {
	UserIDHint   string
	FamilyIDHint string
	IPHash       string
	UserAgent    string
}

func (rc RotationContext) limitKeys() []string {
	var keys []string
	if rc.UserIDHint != "" {
		keys = append(keys, ratelimit.UserKey(rc.UserIDHint))
	}
	if rc.FamilyIDHint != "" {
		keys = append(keys, ratelimit.FamilyKey(rc.FamilyIDHint))
	}
	ipHash := rc.IPHash
	if ipHash == "" {
		ipHash = "unknown"
	}
	return append(keys, ratelimit.IPKey(ipHash))
}

type RotationResult struct {
	Secret             string
	Token              authdomain.RefreshToken
	UserID             string
	FamilyID           string
	Role               string
	ShouldRevokeFamily bool
}

type RotationEngineDeps struct {
	Store      authrepo.TokenStore
	Limiter    ratelimit.Limiter
	Revocation *RevocationService
	Secrets    commoncrypto.SecretGenerator
	Hasher     commoncrypto.TokenHasher
	IDs        commoncrypto.IDGenerator
	Clock      clock.Clock
	Audit      audit.Sink
	Log        *logger.Logger
}

type RotationEngine struct {
	store           authrepo.TokenStore
	limiter         ratelimit.Limiter
	revocation      *RevocationService
	detector        ReuseDetector
	secrets         commoncrypto.SecretGenerator
	hasher          commoncrypto.TokenHasher
	ids             commoncrypto.IDGenerator
	clock           clock.Clock
	audit           audit.Sink
	refreshTokenTTL time.Duration
	raceLossPolicy  RaceLossPolicy
	log             *logger.Logger
}

func NewRotationEngine(deps RotationEngineDeps, refreshTokenTTL time.Duration, raceLossPolicy RaceLossPolicy) *RotationEngine {
	if raceLossPolicy == "" {
		raceLossPolicy = RaceLossRevokeFamily
	}
	return &RotationEngine{
		store:           deps.Store,
		limiter:         deps.Limiter,
		revocation:      deps.Revocation,
		secrets:         deps.Secrets,
		hasher:          deps.Hasher,
		ids:             deps.IDs,
		clock:           deps.Clock,
		audit:           deps.Audit,
		refreshTokenTTL: refreshTokenTTL,
		raceLossPolicy:  raceLossPolicy,
		log:             deps.Log,
	}
}

// ValidateAndRotate exchanges a presented secret for its successor. The old
// record is retired and the successor inserted as one conditional store
// write, so for any secret at most one caller ever receives a successor.
func (e *RotationEngine) ValidateAndRotate(ctx context.Context, secret string, rc RotationContext) (RotationResult, error) {
	start := time.Now()

	decision, err := e.limiter.Allow(ctx, rc.limitKeys()...)
	if err != nil {
		observeRotation(outcomeTransient, start)
		e.log.WithFields(ctx, logger.Fields{
			"action": "rotation_rate_limiter_failed",
		}).Errorf("rate limiter unavailable: %v", err)
		return RotationResult{}, transientError(err)
	}
	if !decision.Allowed {
		observeRotation(outcomeRateLimited, start)
		e.log.WithFields(ctx, logger.Fields{
			"user_id":     rc.UserIDHint,
			"family_id":   rc.FamilyIDHint,
			"retry_after": decision.RetryAfter.String(),
			"action":      "rotation_rate_limited",
		}).Warn("refresh rotation rate limited")
		e.emit(ctx, audit.KindRateLimited, rc.UserIDHint, rc.FamilyIDHint, rc.IPHash, "")
		return RotationResult{}, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	if !commoncrypto.IsWellFormedSecret(secret) {
		observeRotation(outcomeInvalid, start)
		e.emit(ctx, audit.KindInvalidToken, rc.UserIDHint, rc.FamilyIDHint, rc.IPHash, "malformed")
		return RotationResult{}, ErrInvalidToken
	}

	token, err := e.store.FindByTokenHash(ctx, e.hasher.Hash(secret))
	if err != nil {
		if errors.Is(err, authrepo.ErrTokenNotFound) {
			observeRotation(outcomeInvalid, start)
			e.emit(ctx, audit.KindInvalidToken, rc.UserIDHint, rc.FamilyIDHint, rc.IPHash, "not_found")
			return RotationResult{}, ErrInvalidToken
		}
		observeRotation(outcomeTransient, start)
		return RotationResult{}, transientError(err)
	}

	now := e.clock.Now()
	switch e.detector.Classify(token, now) {
	case ClassificationReused:
		observeRotation(outcomeReused, start)
		return e.handleReuse(ctx, token, rc, "revoked_token_presented")
	case ClassificationExpired:
		observeRotation(outcomeExpired, start)
		return RotationResult{}, e.handleExpired(ctx, token, rc, now)
	}

	family, err := e.store.FindFamily(ctx, token.FamilyID)
	if err != nil {
		observeRotation(outcomeTransient, start)
		return RotationResult{}, transientError(err)
	}

	successor, newSecret, err := e.newSuccessor(token, rc, now)
	if err != nil {
		observeRotation(outcomeTransient, start)
		return RotationResult{}, err
	}

	err = e.store.Rotate(ctx, authrepo.RotateParams{
		OldID:     token.ID,
		Successor: successor,
		Now:       now,
	})
	if err != nil {
		if errors.Is(err, authrepo.ErrRotationConflict) {
			observeRotation(outcomeRaceLost, start)
			return e.handleRaceLoss(ctx, token, rc)
		}
		observeRotation(outcomeTransient, start)
		e.log.WithFields(ctx, logger.Fields{
			"user_id":   token.UserID,
			"family_id": token.FamilyID,
			"action":    "rotation_store_failed",
		}).Errorf("refresh rotation failed: %v", err)
		return RotationResult{}, transientError(err)
	}

	observeRotation(outcomeRotated, start)
	incrementRefreshTokensIssued()
	addRefreshTokensRevoked(authdomain.ReasonRotated, 1)
	e.log.WithFields(ctx, logger.Fields{
		"user_id":   token.UserID,
		"family_id": token.FamilyID,
		"sequence":  successor.Sequence,
		"action":    "refresh_token_rotated",
	}).Debug("refresh token rotated")
	e.emit(ctx, audit.KindRotated, token.UserID, token.FamilyID, rc.IPHash, "")

	return RotationResult{
		Secret:   newSecret,
		Token:    successor,
		UserID:   token.UserID,
		FamilyID: token.FamilyID,
		Role:     family.Role,
	}, nil
}

func (e *RotationEngine) newSuccessor(old authdomain.RefreshToken, rc RotationContext, now time.Time) (authdomain.RefreshToken, string, error) {
	id, err := e.ids.NewID()
	if err != nil {
		return authdomain.RefreshToken{}, "", err
	}
	jti, err := e.ids.NewID()
	if err != nil {
		return authdomain.RefreshToken{}, "", err
	}
	secret, err := e.secrets.NewSecret()
	if err != nil {
		return authdomain.RefreshToken{}, "", err
	}

	userAgent := rc.UserAgent
	if userAgent == "" {
		userAgent = old.UserAgent
	}
	ipHash := rc.IPHash
	if ipHash == "" {
		ipHash = old.IPHash
	}

	return authdomain.RefreshToken{
		ID:         id,
		UserID:     old.UserID,
		TokenHash:  e.hasher.Hash(secret),
		FamilyID:   old.FamilyID,
		JTI:        jti,
		Sequence:   old.Sequence + 1,
		DeviceInfo: old.DeviceInfo,
		UserAgent:  userAgent,
		IPHash:     ipHash,
		ExpiresAt:  now.Add(e.refreshTokenTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, secret, nil
}

func (e *RotationEngine) handleReuse(ctx context.Context, token authdomain.RefreshToken, rc RotationContext, cause string) (RotationResult, error) {
	e.log.WithFields(ctx, logger.Fields{
		"user_id":   token.UserID,
		"family_id": token.FamilyID,
		"sequence":  token.Sequence,
		"cause":     cause,
		"action":    "refresh_token_reuse_detected",
	}).Warn("refresh token reuse detected, revoking family")
	e.emit(ctx, audit.KindReuseDetected, token.UserID, token.FamilyID, rc.IPHash, cause)

	result := RotationResult{
		UserID:             token.UserID,
		FamilyID:           token.FamilyID,
		ShouldRevokeFamily: true,
	}

	if _, err := e.revocation.revokeFamily(ctx, token.FamilyID, token.UserID, authdomain.ReasonReuse); err != nil {
		return result, ErrTokenReuseDetected.WithCause(err)
	}
	return result, ErrTokenReuseDetected
}

func (e *RotationEngine) handleExpired(ctx context.Context, token authdomain.RefreshToken, rc RotationContext, now time.Time) error {
	marked, err := e.store.MarkExpired(ctx, token.ID, now)
	if err != nil {
		e.log.WithFields(ctx, logger.Fields{
			"user_id":   token.UserID,
			"family_id": token.FamilyID,
			"action":    "refresh_token_expire_failed",
		}).Warnf("failed to mark refresh token expired: %v", err)
	}
	if marked {
		addRefreshTokensRevoked(authdomain.ReasonExpired, 1)
	}
	e.emit(ctx, audit.KindExpired, token.UserID, token.FamilyID, rc.IPHash, string(authdomain.ReasonExpired))
	return ErrExpiredToken
}

func (e *RotationEngine) handleRaceLoss(ctx context.Context, token authdomain.RefreshToken, rc RotationContext) (RotationResult, error) {
	if e.raceLossPolicy == RaceLossReject {
		e.log.WithFields(ctx, logger.Fields{
			"user_id":   token.UserID,
			"family_id": token.FamilyID,
			"action":    "refresh_rotation_race_lost",
		}).Warn("refresh rotation lost a concurrent race")
		e.emit(ctx, audit.KindInvalidToken, token.UserID, token.FamilyID, rc.IPHash, "race_lost")
		return RotationResult{}, ErrInvalidToken
	}
	return e.handleReuse(ctx, token, rc, "race_lost")
}

func (e *RotationEngine) emit(ctx context.Context, kind audit.Kind, userID, familyID, ipHash, reason string) {
	e.audit.Emit(ctx, audit.Event{
		Kind:      kind,
		UserID:    userID,
		FamilyID:  familyID,
		Timestamp: e.clock.Now(),
		RequestID: audit.RequestIDFromContext(ctx),
		IPHash:    ipHash,
		Reason:    reason,
	})
}
