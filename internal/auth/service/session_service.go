package service

import (
	"context"
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

type StartSessionInput struct {
	UserID     string
	Role       string
	DeviceInfo string
	UserAgent  string
	IPAddress  string
}

type AuthResult struct {
	UserID           string
	FamilyID         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionService is the entry point used by the HTTP layer. It composes the
// registry, the rotation engine, revocation and the access token issuer.
type SessionService struct {
	registry   *FamilyRegistry
	engine     *RotationEngine
	revocation *RevocationService
	issuer     AccessTokenIssuer
	hasher     commoncrypto.TokenHasher
	log        *logger.Logger
}

func NewSessionService(
	registry *FamilyRegistry,
	engine *RotationEngine,
	revocation *RevocationService,
	issuer AccessTokenIssuer,
	hasher commoncrypto.TokenHasher,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		registry:   registry,
		engine:     engine,
		revocation: revocation,
		issuer:     issuer,
		hasher:     hasher,
		log:        log,
	}
}

// HashIP returns the keyed hash stored and logged in place of an address.
func (s *SessionService) HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	return s.hasher.Hash("ip:" + ip)
}

func (s *SessionService) UserHint(accessToken string) string {
	return s.issuer.UserHint(accessToken)
}

func (s *SessionService) StartSession(ctx context.Context, input StartSessionInput) (AuthResult, error) {
	issued, err := s.registry.CreateFamily(ctx, NewFamilyInput{
		UserID:     input.UserID,
		Role:       input.Role,
		DeviceInfo: input.DeviceInfo,
		UserAgent:  input.UserAgent,
		IPHash:     s.HashIP(input.IPAddress),
	})
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, accessExpiresAt, err := s.issuer.IssueAccessToken(input.UserID, input.Role, issued.Family.ID)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id":   input.UserID,
			"family_id": issued.Family.ID,
			"action":    "access_token_issue_failed",
		}).Errorf("failed to issue access token: %v", err)
		return AuthResult{}, err
	}

	return AuthResult{
		UserID:           input.UserID,
		FamilyID:         issued.Family.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     issued.Secret,
		RefreshExpiresAt: issued.Token.ExpiresAt,
	}, nil
}

func (s *SessionService) Refresh(ctx context.Context, secret string, rc RotationContext) (AuthResult, error) {
	result, err := s.engine.ValidateAndRotate(ctx, secret, rc)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, accessExpiresAt, err := s.issuer.IssueAccessToken(result.UserID, result.Role, result.FamilyID)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id":   result.UserID,
			"family_id": result.FamilyID,
			"action":    "access_token_issue_failed",
		}).Errorf("failed to issue access token after rotation: %v", err)
		return AuthResult{}, err
	}

	return AuthResult{
		UserID:           result.UserID,
		FamilyID:         result.FamilyID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     result.Secret,
		RefreshExpiresAt: result.Token.ExpiresAt,
	}, nil
}

func (s *SessionService) Logout(ctx context.Context, secret string) error {
	_, err := s.revocation.RevokeByToken(ctx, secret, authdomain.ReasonLogout)
	return err
}

func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]authdomain.FamilySummary, error) {
	return s.registry.ListActiveFamilies(ctx, userID)
}

// RevokeSession revokes one of the caller's own families. A family that
// belongs to someone else is reported as not found.
func (s *SessionService) RevokeSession(ctx context.Context, userID, familyID string) error {
	family, err := s.registry.FindFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if family.UserID != userID {
		s.log.WithFields(ctx, logger.Fields{
			"user_id":   userID,
			"family_id": familyID,
			"action":    "session_revoke_foreign_family",
		}).Warn("attempt to revoke a session owned by another user")
		return ErrSessionNotFound
	}

	_, err = s.revocation.revokeFamily(ctx, familyID, userID, authdomain.ReasonLogout)
	return err
}

func (s *SessionService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	return s.revocation.RevokeAllForUser(ctx, userID, authdomain.ReasonLogout)
}

// CleanupExpired satisfies the retention worker.
func (s *SessionService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.revocation.CleanupExpired(ctx, retention)
}
