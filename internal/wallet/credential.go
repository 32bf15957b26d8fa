package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	errKeyPairMismatch = errors.New("secret key does not match its public half")
	errOffCurve        = errors.New("public key is not a valid ed25519 point")
	errEmptyCredential = errors.New("empty credential")
)

func errInvalidKeyLength(n int) error {
	return fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, n)
}

// ParseCredential decodes a secret key in either solana-keygen JSON form
// ("[12,34,...]") or base58.
func ParseCredential(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyCredential
	}

	var b []byte
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("decode keypair json: %w", err)
		}
		b = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
			}
			b[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode base58: %w", err)
		}
		b = decoded
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, errInvalidKeyLength(len(b))
	}
	return solana.PrivateKey(b), nil
}
