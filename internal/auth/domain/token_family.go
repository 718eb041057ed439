package domain

import "time"

type TokenFamily struct {
	ID         string
	UserID     string
	Role       string
	DeviceInfo string
	UserAgent  string
	IPHash     string
	CreatedAt  time.Time
	LastUsedAt time.Time
	RevokedAt  *time.Time
}

func (f TokenFamily) IsRevoked() bool {
	return f.RevokedAt != nil
}

// FamilySummary is the session listing view of a family. It deliberately
// carries neither secrets nor ip hashes.
type FamilySummary struct {
	FamilyID   string    `json:"family_id"`
	DeviceInfo string    `json:"device_info"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func (f TokenFamily) Summary() FamilySummary {
	return FamilySummary{
		FamilyID:   f.ID,
		DeviceInfo: f.DeviceInfo,
		UserAgent:  f.UserAgent,
		CreatedAt:  f.CreatedAt,
		LastUsedAt: f.LastUsedAt,
	}
}
