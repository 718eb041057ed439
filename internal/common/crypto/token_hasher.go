package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

type TokenHasher interface {
	Hash(value string) string
}

// Blake2bHasher is a deterministic one-way hash keyed with a server-side
// pepper, so a leaked table of hashes cannot be checked offline without it.
type Blake2bHasher struct {
	key []byte
}

func NewBlake2bHasher(pepper string) (*Blake2bHasher, error) {
	if len(pepper) > blake2b.Size {
		return nil, fmt.Errorf("token hash pepper must be at most %d bytes, got %d", blake2b.Size, len(pepper))
	}
	return &Blake2bHasher{key: []byte(pepper)}, nil
}

func (h *Blake2bHasher) Hash(value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewBlake2bHasher
		panic(err)
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
