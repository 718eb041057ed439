package crypto

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRandomSecretGenerator_NewSecret(t *testing.T) {
	gen := NewRandomSecretGenerator()

	s1, err := gen.NewSecret()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s2, err := gen.NewSecret()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(s1) != 64 {
		t.Errorf("expected 64 hex chars (256 bits), got %d", len(s1))
	}
	if s1 == s2 {
		t.Error("expected distinct secrets")
	}
	if !IsWellFormedSecret(s1) {
		t.Errorf("expected generated secret to be well formed: %q", s1)
	}
}

func TestIsWellFormedSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"empty", "", false},
		{"short", "abcd", false},
		{"uppercase", strings.Repeat("A", 64), false},
		{"non hex", strings.Repeat("z", 64), false},
		{"valid", strings.Repeat("0f", 32), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWellFormedSecret(tc.input); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestBlake2bHasher_Deterministic(t *testing.T) {
	h, err := NewBlake2bHasher("pepper")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	a := h.Hash("secret")
	b := h.Hash("secret")
	c := h.Hash("other")

	if a != b {
		t.Error("expected same hash for same input")
	}
	if a == c {
		t.Error("expected different hash for different input")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestBlake2bHasher_PepperChangesHash(t *testing.T) {
	h1, _ := NewBlake2bHasher("pepper-one")
	h2, _ := NewBlake2bHasher("pepper-two")

	if h1.Hash("secret") == h2.Hash("secret") {
		t.Error("expected pepper to change the hash")
	}
}

func TestBlake2bHasher_PepperTooLong(t *testing.T) {
	if _, err := NewBlake2bHasher(strings.Repeat("x", 65)); err == nil {
		t.Fatal("expected error for oversized pepper")
	}
}

func TestUUIDGenerator_NewID(t *testing.T) {
	id, err := NewUUIDGenerator().NewID()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected valid uuid, got %q", id)
	}
}
