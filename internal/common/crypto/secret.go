package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
)

type SecretGenerator interface {
	NewSecret() (string, error)
}

// RandomSecretGenerator returns hex-encoded secrets of RefreshTokenSize bytes.
type RandomSecretGenerator struct{}

func NewRandomSecretGenerator() *RandomSecretGenerator {
	return &RandomSecretGenerator{}
}

func (g *RandomSecretGenerator) NewSecret() (string, error) {
	b := make([]byte, constants.RefreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormedSecret reports whether s has the shape of a secret produced by
// RandomSecretGenerator. It says nothing about whether the secret exists.
func IsWellFormedSecret(s string) bool {
	if len(s) != constants.RefreshTokenHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
