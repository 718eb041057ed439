package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
)

func TestRevocationService_RevokeFamilyIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	n, err := env.revocation.RevokeFamily(ctx, issued.Family.ID, authdomain.ReasonIncident)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 revoked, got %d", n)
	}

	n, err = env.revocation.RevokeFamily(ctx, issued.Family.ID, authdomain.ReasonIncident)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 on second revoke, got %d", n)
	}
	if env.sink.Count(audit.KindFamilyRevoked) != 1 {
		t.Errorf("expected one FAMILY_REVOKED event, got %d", env.sink.Count(audit.KindFamilyRevoked))
	}
	for _, ev := range env.sink.Events() {
		if ev.Kind == audit.KindFamilyRevoked && ev.UserID != "user-1" {
			t.Errorf("expected FAMILY_REVOKED for user-1, got %q", ev.UserID)
		}
	}

	token := env.record(t, issued.Secret)
	if token.Reason != authdomain.ReasonIncident {
		t.Errorf("expected reason incident, got %q", token.Reason)
	}
}

func TestRevocationService_RevokeUnknownFamily(t *testing.T) {
	env := newTestEnv(t)

	n, err := env.revocation.RevokeFamily(context.Background(), "missing", authdomain.ReasonIncident)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 revoked, got %d", n)
	}
	if env.sink.Count(audit.KindFamilyRevoked) != 0 {
		t.Error("expected no FAMILY_REVOKED event")
	}
}

func TestRevocationService_RevokeAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createFamily(t, "user-1")
	b := env.createFamily(t, "user-1")
	other := env.createFamily(t, "user-2")

	n, err := env.revocation.RevokeAllForUser(ctx, "user-1", authdomain.ReasonIncident)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 revoked, got %d", n)
	}
	if !env.record(t, a.Secret).IsRevoked() || !env.record(t, b.Secret).IsRevoked() {
		t.Error("expected all user records revoked")
	}
	if env.record(t, other.Secret).IsRevoked() {
		t.Error("expected other users untouched")
	}
	if env.sink.Count(audit.KindUserRevoked) != 1 {
		t.Errorf("expected one USER_REVOKED event, got %d", env.sink.Count(audit.KindUserRevoked))
	}
}

func TestRevocationService_RevokeByToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	for _, secret := range []string{"", "garbage"} {
		n, err := env.revocation.RevokeByToken(ctx, secret, authdomain.ReasonLogout)
		if err != nil || n != 0 {
			t.Errorf("expected no-op for %q, got n=%d err=%v", secret, n, err)
		}
	}

	n, err := env.revocation.RevokeByToken(ctx, issued.Secret, authdomain.ReasonLogout)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 revoked, got %d", n)
	}
	if env.record(t, issued.Secret).Reason != authdomain.ReasonLogout {
		t.Error("expected reason logout")
	}
}

func TestRevocationService_StoreFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	issued := env.createFamily(t, "user-1")
	env.store.revokeFamilyFunc = func(context.Context, string, authdomain.RevocationReason, time.Time) (int64, error) {
		return 0, errors.New("timeout")
	}

	_, err := env.revocation.RevokeFamily(context.Background(), issued.Family.ID, authdomain.ReasonIncident)
	if !errors.Is(err, ErrTransientStorage) {
		t.Errorf("expected ErrTransientStorage, got %v", err)
	}
}

func TestRevocationService_CleanupExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	retention := 24 * time.Hour

	active := env.createFamily(t, "user-1")
	stale := env.createFamily(t, "user-2")
	if _, err := env.revocation.RevokeFamily(ctx, stale.Family.ID, authdomain.ReasonLogout); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	env.clock.Advance(retention + time.Hour)

	deleted, err := env.revocation.CleanupExpired(ctx, retention)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := env.memory.FindByTokenHash(ctx, env.hasher.Hash(stale.Secret)); !errors.Is(err, authrepo.ErrTokenNotFound) {
		t.Errorf("expected stale record deleted, got %v", err)
	}
	if _, err := env.memory.FindFamily(ctx, stale.Family.ID); !errors.Is(err, authrepo.ErrFamilyNotFound) {
		t.Errorf("expected empty family deleted, got %v", err)
	}
	if !env.record(t, active.Secret).IsActive(env.clock.Now()) {
		t.Error("expected active record untouched")
	}
	if env.sink.Count(audit.KindCleanup) != 1 {
		t.Errorf("expected one CLEANUP event, got %d", env.sink.Count(audit.KindCleanup))
	}
}

func TestRevocationService_CleanupMarksNaturallyExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued := env.createFamily(t, "user-1")
	env.clock.Advance(8 * 24 * time.Hour)

	if _, err := env.revocation.CleanupExpired(ctx, 30*24*time.Hour); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	token := env.record(t, issued.Secret)
	if token.Reason != authdomain.ReasonExpired {
		t.Errorf("expected reason expired, got %q", token.Reason)
	}
}
