package service

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/auth/ratelimit"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
)

const testJWTSecret = "test-jwt-secret-that-is-long-enough-for-hs256"

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	authrepo.TokenStore
	findCalls           atomic.Int32
	findByTokenHashFunc func(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	rotateFunc          func(ctx context.Context, params authrepo.RotateParams) error
	revokeFamilyFunc    func(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error)
}

func (m *mockStore) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	m.findCalls.Add(1)
	if m.findByTokenHashFunc != nil {
		return m.findByTokenHashFunc(ctx, hash)
	}
	return m.TokenStore.FindByTokenHash(ctx, hash)
}

func (m *mockStore) Rotate(ctx context.Context, params authrepo.RotateParams) error {
	if m.rotateFunc != nil {
		return m.rotateFunc(ctx, params)
	}
	return m.TokenStore.Rotate(ctx, params)
}

func (m *mockStore) RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	if m.revokeFamilyFunc != nil {
		return m.revokeFamilyFunc(ctx, familyID, reason, now)
	}
	return m.TokenStore.RevokeFamily(ctx, familyID, reason, now)
}

type mockLimiter struct {
	allowFunc func(ctx context.Context, keys ...string) (ratelimit.Decision, error)
}

func (m *mockLimiter) Allow(ctx context.Context, keys ...string) (ratelimit.Decision, error) {
	return m.allowFunc(ctx, keys...)
}

type envConfig struct {
	rateLimit   int
	maxFamilies int
	policy      RaceLossPolicy
	limiter     ratelimit.Limiter
}

type testEnv struct {
	memory     *authrepo.MemoryTokenStore
	store      *mockStore
	clock      *clock.MockClock
	sink       *audit.MemorySink
	hasher     commoncrypto.TokenHasher
	registry   *FamilyRegistry
	revocation *RevocationService
	engine     *RotationEngine
	issuer     *TokenIssuer
	sessions   *SessionService
}

func newTestEnv(t *testing.T, opts ...func(*envConfig)) *testEnv {
	t.Helper()

	cfg := envConfig{
		rateLimit:   1000,
		maxFamilies: 10,
		policy:      RaceLossRevokeFamily,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.NewWithWriter(io.Discard, "test", "error")
	clk := clock.NewMockClock(baseTime)
	memory := authrepo.NewMemoryTokenStore()
	store := &mockStore{TokenStore: memory}
	sink := audit.NewMemorySink()

	hasher, err := commoncrypto.NewBlake2bHasher("test-pepper")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	secrets := commoncrypto.NewRandomSecretGenerator()
	ids := commoncrypto.NewUUIDGenerator()

	limiter := cfg.limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.rateLimit, time.Minute, clk)
	}

	registry := NewFamilyRegistry(store, secrets, hasher, ids, 7*24*time.Hour, cfg.maxFamilies, clk, sink, log)
	revocation := NewRevocationService(store, hasher, clk, sink, log)
	engine := NewRotationEngine(RotationEngineDeps{
		Store:      store,
		Limiter:    limiter,
		Revocation: revocation,
		Secrets:    secrets,
		Hasher:     hasher,
		IDs:        ids,
		Clock:      clk,
		Audit:      sink,
		Log:        log,
	}, 7*24*time.Hour, cfg.policy)
	issuer := NewTokenIssuer(testJWTSecret, ids, 15*time.Minute, clk)

	return &testEnv{
		memory:     memory,
		store:      store,
		clock:      clk,
		sink:       sink,
		hasher:     hasher,
		registry:   registry,
		revocation: revocation,
		engine:     engine,
		issuer:     issuer,
		sessions:   NewSessionService(registry, engine, revocation, issuer, hasher, log),
	}
}

func (e *testEnv) createFamily(t *testing.T, userID string) IssuedToken {
	t.Helper()
	issued, err := e.registry.CreateFamily(context.Background(), NewFamilyInput{
		UserID:     userID,
		Role:       "user",
		DeviceInfo: "laptop",
		UserAgent:  "test-agent",
		IPHash:     "iphash",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return issued
}

func (e *testEnv) record(t *testing.T, secret string) authdomain.RefreshToken {
	t.Helper()
	token, err := e.memory.FindByTokenHash(context.Background(), e.hasher.Hash(secret))
	if err != nil {
		t.Fatalf("expected record for secret, got %v", err)
	}
	return token
}
