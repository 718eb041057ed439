package domain

import (
	"testing"
	"time"
)

func TestRefreshToken_IsExpired_Boundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	token := RefreshToken{ExpiresAt: now}

	if !token.IsExpired(now) {
		t.Error("expected token expiring exactly now to be expired")
	}
	if token.IsExpired(now.Add(-time.Nanosecond)) {
		t.Error("expected token to be valid just before expiry")
	}
}

func TestRefreshToken_IsActive(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	revokedAt := now.Add(-time.Minute)

	active := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	revoked := RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}

	if !active.IsActive(now) {
		t.Error("expected unrevoked unexpired token to be active")
	}
	if revoked.IsActive(now) {
		t.Error("expected revoked token not to be active")
	}
}

func TestRevocationReason_Valid(t *testing.T) {
	for _, r := range []RevocationReason{ReasonRotated, ReasonExpired, ReasonLogout, ReasonIncident, ReasonReuse} {
		if !r.Valid() {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if RevocationReason("bogus").Valid() {
		t.Error("expected unknown reason to be invalid")
	}
}
