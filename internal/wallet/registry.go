package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// EnvPrivateKey names the variable FromEnv reads.
const EnvPrivateKey = "SOLANA_PRIVATE_KEY_BASE58"

// Record is one wallet as supplied by a registry. Credential is nil for
// watch-only wallets.
type Record struct {
	ID         string
	PublicKey  string
	Credential solana.PrivateKey
}

type registryEntry struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Pubkey string `json:"pubkey"`
}

// LoadRegistry reads a JSON registry of the form
// [{"id":"w1","path":"keys/w1.json","pubkey":"..."}]. Relative key paths are
// resolved against the registry's directory. Entries without a path are
// watch-only. Entries that fail to load are reported in the joined error and
// skipped; the rest are returned.
func LoadRegistry(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var entries []registryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	base := filepath.Dir(path)
	records := make([]Record, 0, len(entries))
	var errs []error
	for _, ent := range entries {
		if ent.ID == "" {
			errs = append(errs, errors.New("registry entry without id"))
			continue
		}
		rec := Record{ID: ent.ID, PublicKey: ent.Pubkey}
		if ent.Path != "" {
			keyPath := ent.Path
			if !filepath.IsAbs(keyPath) {
				keyPath = filepath.Join(base, keyPath)
			}
			raw, err := os.ReadFile(keyPath)
			if err != nil {
				errs = append(errs, fmt.Errorf("wallet %s: read key: %w", ent.ID, err))
				continue
			}
			cred, err := ParseCredential(string(raw))
			if err != nil {
				errs = append(errs, fmt.Errorf("wallet %s: %w", ent.ID, err))
				continue
			}
			rec.Credential = cred
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

// FromEnv builds a record from SOLANA_PRIVATE_KEY_BASE58, loading a .env file
// first when one is present.
func FromEnv(id string) (Record, error) {
	_ = godotenv.Load() // best-effort
	b58 := os.Getenv(EnvPrivateKey)
	if b58 == "" {
		return Record{}, fmt.Errorf("%s not set", EnvPrivateKey)
	}
	cred, err := ParseCredential(b58)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Credential: cred}, nil
}

// RegisterAll feeds records into the pool and returns how many were accepted.
func (p *Pool) RegisterAll(records []Record) (int, error) {
	var errs []error
	n := 0
	for _, rec := range records {
		if err := p.Register(rec.ID, rec.PublicKey, rec.Credential); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
