package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
	"github.com/AlibekovAA/session-guard/internal/auth/ratelimit"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

func TestRotationEngine_ValidateAndRotate_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	result, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{IPHash: "iphash"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Secret == "" || result.Secret == issued.Secret {
		t.Fatal("expected a fresh secret")
	}
	if result.UserID != "user-1" || result.FamilyID != issued.Family.ID {
		t.Errorf("unexpected result identity: %+v", result)
	}
	if result.Role != "user" {
		t.Errorf("expected role user, got %q", result.Role)
	}
	if result.Token.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", result.Token.Sequence)
	}

	old := env.record(t, issued.Secret)
	if !old.IsRevoked() || old.Reason != authdomain.ReasonRotated {
		t.Errorf("expected old record rotated, got %+v", old)
	}
	if old.ReplacedBy != result.Token.ID {
		t.Errorf("expected replaced_by %s, got %s", result.Token.ID, old.ReplacedBy)
	}
	if env.sink.Count(audit.KindRotated) != 1 {
		t.Errorf("expected one ROTATED event, got %d", env.sink.Count(audit.KindRotated))
	}
}

func TestRotationEngine_Chain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	secrets := []string{issued.Secret}
	for i := 0; i < 2; i++ {
		env.clock.Advance(time.Minute)
		result, err := env.engine.ValidateAndRotate(ctx, secrets[len(secrets)-1], RotationContext{})
		if err != nil {
			t.Fatalf("rotation %d: expected no error, got %v", i+1, err)
		}
		secrets = append(secrets, result.Secret)
	}

	t1 := env.record(t, secrets[0])
	t2 := env.record(t, secrets[1])
	t3 := env.record(t, secrets[2])

	if t1.ReplacedBy != t2.ID || t2.ReplacedBy != t3.ID {
		t.Error("expected replaced_by chain T1 -> T2 -> T3")
	}
	if t3.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", t3.Sequence)
	}
	if !t3.IsActive(env.clock.Now()) {
		t.Error("expected newest record to be active")
	}
	if !t3.ExpiresAt.Equal(env.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Errorf("expected expiry to slide with each rotation, got %v", t3.ExpiresAt)
	}
}

func TestRotationEngine_ReuseRevokesFamily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	result, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}
	if !IsReauthRequired(err) {
		t.Error("expected reuse to require re-authentication")
	}

	newest := env.record(t, result.Secret)
	if !newest.IsRevoked() || newest.Reason != authdomain.ReasonReuse {
		t.Errorf("expected newest record revoked for reuse, got %+v", newest)
	}

	family, err := env.memory.FindFamily(ctx, issued.Family.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !family.IsRevoked() {
		t.Error("expected family to be revoked")
	}

	_, err = env.engine.ValidateAndRotate(ctx, result.Secret, RotationContext{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Errorf("expected successor to be rejected as reuse, got %v", err)
	}

	if env.sink.Count(audit.KindReuseDetected) != 2 {
		t.Errorf("expected two REUSE_DETECTED events, got %d", env.sink.Count(audit.KindReuseDetected))
	}
	if env.sink.Count(audit.KindFamilyRevoked) != 1 {
		t.Errorf("expected one FAMILY_REVOKED event, got %d", env.sink.Count(audit.KindFamilyRevoked))
	}
}

func TestRotationEngine_ReuseWithFailedRevocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	if _, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	storeErr := errors.New("connection reset")
	env.store.revokeFamilyFunc = func(context.Context, string, authdomain.RevocationReason, time.Time) (int64, error) {
		return 0, storeErr
	}

	result, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}
	if !result.ShouldRevokeFamily {
		t.Error("expected ShouldRevokeFamily to be set")
	}
}

func TestRotationEngine_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *envConfig) { c.rateLimit = 5 })
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	rc := RotationContext{UserIDHint: "user-1"}
	secret := issued.Secret
	for i := 0; i < 5; i++ {
		result, err := env.engine.ValidateAndRotate(ctx, secret, rc)
		if err != nil {
			t.Fatalf("attempt %d: expected no error, got %v", i+1, err)
		}
		secret = result.Secret
	}

	callsBefore := env.store.findCalls.Load()
	_, err := env.engine.ValidateAndRotate(ctx, secret, rc)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || rlErr.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", err)
	}
	if env.store.findCalls.Load() != callsBefore {
		t.Error("expected no store lookup for a rate limited attempt")
	}
	if env.record(t, secret).IsRevoked() {
		t.Error("expected rate limiting to leave the token untouched")
	}
	if env.sink.Count(audit.KindRateLimited) != 1 {
		t.Errorf("expected one RATE_LIMITED event, got %d", env.sink.Count(audit.KindRateLimited))
	}

	env.clock.Advance(time.Minute + time.Second)
	if _, err := env.engine.ValidateAndRotate(ctx, secret, rc); err != nil {
		t.Errorf("expected rotation after the window, got %v", err)
	}
}

func TestRotationEngine_RateLimitedAcrossFamilyHints(t *testing.T) {
	env := newTestEnv(t, func(c *envConfig) { c.rateLimit = 2 })
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	secret := issued.Secret
	for i := 0; i < 2; i++ {
		rc := RotationContext{FamilyIDHint: fmt.Sprintf("family-%d", i), IPHash: "ip-1"}
		result, err := env.engine.ValidateAndRotate(ctx, secret, rc)
		if err != nil {
			t.Fatalf("attempt %d: expected no error, got %v", i+1, err)
		}
		secret = result.Secret
	}

	_, err := env.engine.ValidateAndRotate(ctx, secret, RotationContext{FamilyIDHint: "family-new", IPHash: "ip-1"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if _, err := env.engine.ValidateAndRotate(ctx, secret, RotationContext{IPHash: "ip-2"}); err != nil {
		t.Errorf("expected another address to pass, got %v", err)
	}
}

func TestRotationEngine_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		reused    int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenReuseDetected):
				reused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
	if reused != callers-1 {
		t.Errorf("expected %d losers, got %d", callers-1, reused)
	}

	family, err := env.memory.FindFamily(ctx, issued.Family.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !family.IsRevoked() {
		t.Error("expected family revoked after lost races")
	}
}

func TestRotationEngine_RaceLossReject(t *testing.T) {
	env := newTestEnv(t, func(c *envConfig) { c.policy = RaceLossReject })
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	env.store.rotateFunc = func(context.Context, authrepo.RotateParams) error {
		return authrepo.ErrRotationConflict
	}

	_, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	family, err := env.memory.FindFamily(ctx, issued.Family.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if family.IsRevoked() {
		t.Error("expected reject policy to leave the family alone")
	}
}

func TestRotationEngine_RaceLossRevokeFamily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	env.store.rotateFunc = func(context.Context, authrepo.RotateParams) error {
		return authrepo.ErrRotationConflict
	}

	_, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}
	if !env.record(t, issued.Secret).IsRevoked() {
		t.Error("expected family records revoked")
	}
}

func TestRotationEngine_ExpiredAtBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := env.createFamily(t, "user-1")

	env.clock.SetTime(issued.Token.ExpiresAt)

	_, err := env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	token := env.record(t, issued.Secret)
	if token.Reason != authdomain.ReasonExpired {
		t.Errorf("expected reason expired, got %q", token.Reason)
	}
	if env.sink.Count(audit.KindExpired) != 1 {
		t.Errorf("expected one EXPIRED event, got %d", env.sink.Count(audit.KindExpired))
	}

	_, err = env.engine.ValidateAndRotate(ctx, issued.Secret, RotationContext{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Errorf("expected a marked-expired record to count as reuse, got %v", err)
	}
}

func TestRotationEngine_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		secret string
	}{
		{name: "empty", secret: ""},
		{name: "malformed", secret: "not a secret"},
		{name: "uppercase", secret: strings.Repeat("A", constants.RefreshTokenHexLen)},
		{name: "unknown", secret: strings.Repeat("a", constants.RefreshTokenHexLen)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.ValidateAndRotate(ctx, tc.secret, RotationContext{})
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRotationEngine_LimiterFailureIsTransient(t *testing.T) {
	limiter := &mockLimiter{
		allowFunc: func(context.Context, ...string) (ratelimit.Decision, error) {
			return ratelimit.Decision{}, errors.New("redis down")
		},
	}
	env := newTestEnv(t, func(c *envConfig) { c.limiter = limiter })
	issued := env.createFamily(t, "user-1")

	_, err := env.engine.ValidateAndRotate(context.Background(), issued.Secret, RotationContext{})
	if !errors.Is(err, ErrTransientStorage) {
		t.Fatalf("expected ErrTransientStorage, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("expected limiter failure to be retryable")
	}
	if env.record(t, issued.Secret).IsRevoked() {
		t.Error("expected token untouched")
	}
}

func TestRotationEngine_StoreFailures(t *testing.T) {
	storeErr := errors.New("connection refused")

	t.Run("lookup", func(t *testing.T) {
		env := newTestEnv(t)
		issued := env.createFamily(t, "user-1")
		env.store.findByTokenHashFunc = func(context.Context, string) (authdomain.RefreshToken, error) {
			return authdomain.RefreshToken{}, storeErr
		}

		_, err := env.engine.ValidateAndRotate(context.Background(), issued.Secret, RotationContext{})
		if !errors.Is(err, ErrTransientStorage) {
			t.Errorf("expected ErrTransientStorage, got %v", err)
		}
	})

	t.Run("rotate", func(t *testing.T) {
		env := newTestEnv(t)
		issued := env.createFamily(t, "user-1")
		env.store.rotateFunc = func(context.Context, authrepo.RotateParams) error {
			return storeErr
		}

		_, err := env.engine.ValidateAndRotate(context.Background(), issued.Secret, RotationContext{})
		if !errors.Is(err, ErrTransientStorage) {
			t.Errorf("expected ErrTransientStorage, got %v", err)
		}
		if IsReauthRequired(err) {
			t.Error("expected a storage failure not to force re-authentication")
		}
		if env.record(t, issued.Secret).IsRevoked() {
			t.Error("expected token to stay usable after a failed write")
		}
	})
}

func TestRotationContext_LimitKeys(t *testing.T) {
	tests := []struct {
		name string
		rc   RotationContext
		want []string
	}{
		{
			name: "user and family",
			rc:   RotationContext{UserIDHint: "u1", FamilyIDHint: "f1", IPHash: "h"},
			want: []string{ratelimit.UserKey("u1"), ratelimit.FamilyKey("f1"), ratelimit.IPKey("h")},
		},
		{
			name: "family without ip",
			rc:   RotationContext{FamilyIDHint: "f1"},
			want: []string{ratelimit.FamilyKey("f1"), ratelimit.IPKey("unknown")},
		},
		{
			name: "ip only",
			rc:   RotationContext{IPHash: "h"},
			want: []string{ratelimit.IPKey("h")},
		},
		{
			name: "nothing known",
			rc:   RotationContext{},
			want: []string{ratelimit.IPKey("unknown")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.rc.limitKeys()
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}
