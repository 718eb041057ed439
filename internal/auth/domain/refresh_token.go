package domain

import "time"

type RevocationReason string

const (
	ReasonRotated  RevocationReason = "rotated"
	ReasonExpired  RevocationReason = "expired"
	ReasonLogout   RevocationReason = "logout"
	ReasonIncident RevocationReason = "incident"
	ReasonReuse    RevocationReason = "reuse"
)

func (r RevocationReason) Valid() bool {
	switch r {
	case ReasonRotated, ReasonExpired, ReasonLogout, ReasonIncident, ReasonReuse:
		return true
	}
	return false
}

// RefreshToken is one link in a family chain. Only TokenHash is persisted;
// the raw secret is handed to the client once and never stored.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	FamilyID   string
	JTI        string
	Sequence   int64
	ReplacedBy string
	RevokedAt  *time.Time
	Reason     RevocationReason
	DeviceInfo string
	UserAgent  string
	IPHash     string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired treats expiresAt == now as expired.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
