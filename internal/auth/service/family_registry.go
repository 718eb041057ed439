package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/common/clock"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type NewFamilyInput struct {
	UserID     string `validate:"required,max=128"`
	Role       string `validate:"max=32"`
	DeviceInfo string `validate:"max=128"`
	UserAgent  string
	IPHash     string
}

// IssuedToken carries a freshly minted secret. Secret exists only here and
// in the response to the client.
type IssuedToken struct {
	Secret string
	Token  authdomain.RefreshToken
	Family authdomain.TokenFamily
}

type FamilyRegistry struct {
	store             authrepo.TokenStore
	secrets           commoncrypto.SecretGenerator
	hasher            commoncrypto.TokenHasher
	ids               commoncrypto.IDGenerator
	clock             clock.Clock
	audit             audit.Sink
	validate          *validator.Validate
	refreshTokenTTL   time.Duration
	maxActiveFamilies int
	log               *logger.Logger
}

func NewFamilyRegistry(
	store authrepo.TokenStore,
	secrets commoncrypto.SecretGenerator,
	hasher commoncrypto.TokenHasher,
	ids commoncrypto.IDGenerator,
	refreshTokenTTL time.Duration,
	maxActiveFamilies int,
	clock clock.Clock,
	auditSink audit.Sink,
	log *logger.Logger,
) *FamilyRegistry {
	return &FamilyRegistry{
		store:             store,
		secrets:           secrets,
		hasher:            hasher,
		ids:               ids,
		clock:             clock,
		audit:             auditSink,
		validate:          validator.New(),
		refreshTokenTTL:   refreshTokenTTL,
		maxActiveFamilies: maxActiveFamilies,
		log:               log,
	}
}

func (r *FamilyRegistry) CreateFamily(ctx context.Context, input NewFamilyInput) (IssuedToken, error) {
	if len(input.UserAgent) > constants.UserAgentMaxLength {
		input.UserAgent = input.UserAgent[:constants.UserAgentMaxLength]
	}
	if err := r.validate.Struct(input); err != nil {
		return IssuedToken{}, ErrValidation.WithCause(err)
	}

	familyID, err := r.ids.NewID()
	if err != nil {
		return IssuedToken{}, err
	}
	tokenID, err := r.ids.NewID()
	if err != nil {
		return IssuedToken{}, err
	}
	jti, err := r.ids.NewID()
	if err != nil {
		return IssuedToken{}, err
	}
	secret, err := r.secrets.NewSecret()
	if err != nil {
		return IssuedToken{}, err
	}

	now := r.clock.Now()
	family := authdomain.TokenFamily{
		ID:         familyID,
		UserID:     input.UserID,
		Role:       input.Role,
		DeviceInfo: input.DeviceInfo,
		UserAgent:  input.UserAgent,
		IPHash:     input.IPHash,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	token := authdomain.RefreshToken{
		ID:         tokenID,
		UserID:     input.UserID,
		TokenHash:  r.hasher.Hash(secret),
		FamilyID:   familyID,
		JTI:        jti,
		Sequence:   1,
		DeviceInfo: input.DeviceInfo,
		UserAgent:  input.UserAgent,
		IPHash:     input.IPHash,
		ExpiresAt:  now.Add(r.refreshTokenTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = r.store.CreateFamily(ctx, family, token, r.maxActiveFamilies)
	if err != nil {
		if errors.Is(err, authrepo.ErrFamilyLimitReached) {
			metrics.TokenFamiliesRejected.Inc()
			r.log.WithFields(ctx, logger.Fields{
				"user_id": input.UserID,
				"limit":   r.maxActiveFamilies,
				"action":  "family_limit_exceeded",
			}).Warn("session family limit reached")
			r.audit.Emit(ctx, audit.Event{
				Kind:      audit.KindFamilyLimitExceeded,
				UserID:    input.UserID,
				Timestamp: now,
				RequestID: audit.RequestIDFromContext(ctx),
				IPHash:    input.IPHash,
			})
			return IssuedToken{}, ErrFamilyLimitExceeded
		}
		r.log.WithFields(ctx, logger.Fields{
			"user_id": input.UserID,
			"action":  "family_create_failed",
		}).Errorf("failed to create session family: %v", err)
		return IssuedToken{}, transientError(err)
	}

	metrics.TokenFamiliesCreated.Inc()
	incrementRefreshTokensIssued()
	r.log.WithFields(ctx, logger.Fields{
		"user_id":   input.UserID,
		"family_id": familyID,
		"action":    "family_created",
	}).Info("session family created")
	r.audit.Emit(ctx, audit.Event{
		Kind:      audit.KindFamilyCreated,
		UserID:    input.UserID,
		FamilyID:  familyID,
		Timestamp: now,
		RequestID: audit.RequestIDFromContext(ctx),
		IPHash:    input.IPHash,
	})

	return IssuedToken{Secret: secret, Token: token, Family: family}, nil
}

func (r *FamilyRegistry) ListActiveFamilies(ctx context.Context, userID string) ([]authdomain.FamilySummary, error) {
	summaries, err := r.store.ListActiveFamilies(ctx, userID, r.clock.Now())
	if err != nil {
		return nil, transientError(err)
	}
	if summaries == nil {
		summaries = []authdomain.FamilySummary{}
	}
	return summaries, nil
}

func (r *FamilyRegistry) FindFamily(ctx context.Context, familyID string) (authdomain.TokenFamily, error) {
	family, err := r.store.FindFamily(ctx, familyID)
	if err != nil {
		if errors.Is(err, authrepo.ErrFamilyNotFound) {
			return authdomain.TokenFamily{}, ErrSessionNotFound
		}
		return authdomain.TokenFamily{}, transientError(err)
	}
	return family, nil
}
