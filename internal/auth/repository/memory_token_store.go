package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	authdomain "github.com/AlibekovAA/session-guard/internal/auth/domain"
)

// MemoryTokenStore keeps all state behind one mutex, which gives every
// method the same all-or-nothing conditional semantics as the Postgres
// store. It is meant for tests and single-instance deployments.
type MemoryTokenStore struct {
	mu       sync.Mutex
	tokens   map[string]*authdomain.RefreshToken
	byHash   map[string]string
	jtis     map[string]struct{}
	families map[string]*authdomain.TokenFamily
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens:   make(map[string]*authdomain.RefreshToken),
		byHash:   make(map[string]string),
		jtis:     make(map[string]struct{}),
		families: make(map[string]*authdomain.TokenFamily),
	}
}

func (s *MemoryTokenStore) CreateFamily(ctx context.Context, family authdomain.TokenFamily, first authdomain.RefreshToken, maxActive int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, f := range s.families {
		if f.UserID == family.UserID && s.isFamilyActiveLocked(f, family.CreatedAt) {
			active++
		}
	}
	if active >= maxActive {
		return ErrFamilyLimitReached
	}
	if _, exists := s.families[family.ID]; exists {
		return ErrDuplicateToken
	}
	if err := s.checkUniqueLocked(first); err != nil {
		return err
	}

	f := family
	s.families[f.ID] = &f
	s.insertLocked(first)
	return nil
}

func (s *MemoryTokenStore) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return authdomain.RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[hash]
	if !ok {
		return authdomain.RefreshToken{}, ErrTokenNotFound
	}
	return cloneToken(s.tokens[id]), nil
}

func (s *MemoryTokenStore) FindFamily(ctx context.Context, familyID string) (authdomain.TokenFamily, error) {
	if err := ctx.Err(); err != nil {
		return authdomain.TokenFamily{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.families[familyID]
	if !ok {
		return authdomain.TokenFamily{}, ErrFamilyNotFound
	}
	return cloneFamily(f), nil
}

func (s *MemoryTokenStore) ListActiveFamilies(ctx context.Context, userID string, now time.Time) ([]authdomain.FamilySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []authdomain.FamilySummary
	for _, f := range s.families {
		if f.UserID == userID && s.isFamilyActiveLocked(f, now) {
			summaries = append(summaries, f.Summary())
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastUsedAt.Equal(summaries[j].LastUsedAt) {
			return summaries[i].LastUsedAt.After(summaries[j].LastUsedAt)
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *MemoryTokenStore) Rotate(ctx context.Context, params RotateParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[params.OldID]
	if !ok || old.IsRevoked() || old.IsExpired(params.Now) {
		return ErrRotationConflict
	}
	if err := s.checkUniqueLocked(params.Successor); err != nil {
		return err
	}
	for _, t := range s.tokens {
		if t.FamilyID == params.Successor.FamilyID && t.Sequence == params.Successor.Sequence {
			return ErrDuplicateToken
		}
	}

	revokedAt := params.Now
	old.RevokedAt = &revokedAt
	old.Reason = authdomain.ReasonRotated
	old.ReplacedBy = params.Successor.ID
	old.UpdatedAt = params.Now

	s.insertLocked(params.Successor)
	if f, ok := s.families[params.Successor.FamilyID]; ok {
		f.LastUsedAt = params.Now
	}
	return nil
}

func (s *MemoryTokenStore) MarkExpired(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.IsRevoked() || !t.IsExpired(now) {
		return false, nil
	}
	revokeLocked(t, authdomain.ReasonExpired, now)
	return true, nil
}

func (s *MemoryTokenStore) RevokeFamily(ctx context.Context, familyID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for _, t := range s.tokens {
		if t.FamilyID == familyID && !t.IsRevoked() {
			revokeLocked(t, reason, now)
			revoked++
		}
	}
	if f, ok := s.families[familyID]; ok && !f.IsRevoked() {
		revokedAt := now
		f.RevokedAt = &revokedAt
	}
	return revoked, nil
}

func (s *MemoryTokenStore) RevokeAllForUser(ctx context.Context, userID string, reason authdomain.RevocationReason, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for _, t := range s.tokens {
		if t.UserID == userID && !t.IsRevoked() {
			revokeLocked(t, reason, now)
			revoked++
		}
	}
	for _, f := range s.families {
		if f.UserID == userID && !f.IsRevoked() {
			revokedAt := now
			f.RevokedAt = &revokedAt
		}
	}
	return revoked, nil
}

func (s *MemoryTokenStore) MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, t := range s.tokens {
		if !t.IsRevoked() && t.IsExpired(now) {
			revokeLocked(t, authdomain.ReasonExpired, now)
			expired++
		}
	}
	return expired, nil
}

func (s *MemoryTokenStore) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tokens {
		if t.IsRevoked() && t.RevokedAt.Before(cutoff) {
			delete(s.byHash, t.TokenHash)
			delete(s.jtis, t.JTI)
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryTokenStore) DeleteEmptyFamilies(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	populated := make(map[string]struct{}, len(s.families))
	for _, t := range s.tokens {
		populated[t.FamilyID] = struct{}{}
	}

	var deleted int64
	for id := range s.families {
		if _, ok := populated[id]; !ok {
			delete(s.families, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryTokenStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryTokenStore) isFamilyActiveLocked(f *authdomain.TokenFamily, now time.Time) bool {
	if f.IsRevoked() {
		return false
	}
	for _, t := range s.tokens {
		if t.FamilyID == f.ID && t.IsActive(now) {
			return true
		}
	}
	return false
}

func (s *MemoryTokenStore) checkUniqueLocked(token authdomain.RefreshToken) error {
	if _, exists := s.byHash[token.TokenHash]; exists {
		return ErrDuplicateToken
	}
	if _, exists := s.jtis[token.JTI]; exists {
		return ErrDuplicateToken
	}
	if _, exists := s.tokens[token.ID]; exists {
		return ErrDuplicateToken
	}
	return nil
}

func (s *MemoryTokenStore) insertLocked(token authdomain.RefreshToken) {
	t := token
	s.tokens[t.ID] = &t
	s.byHash[t.TokenHash] = t.ID
	s.jtis[t.JTI] = struct{}{}
}

func revokeLocked(t *authdomain.RefreshToken, reason authdomain.RevocationReason, now time.Time) {
	revokedAt := now
	t.RevokedAt = &revokedAt
	t.Reason = reason
	t.UpdatedAt = now
}

func cloneToken(t *authdomain.RefreshToken) authdomain.RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		revokedAt := *t.RevokedAt
		c.RevokedAt = &revokedAt
	}
	return c
}

func cloneFamily(f *authdomain.TokenFamily) authdomain.TokenFamily {
	c := *f
	if f.RevokedAt != nil {
		revokedAt := *f.RevokedAt
		c.RevokedAt = &revokedAt
	}
	return c
}
