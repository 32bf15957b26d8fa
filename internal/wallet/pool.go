// Package wallet holds signing wallets, their cached balances and the
// advisory busy flag used by pipeline callers.
package wallet

import (
	"crypto/ed25519"
	"sort"
	"sync"

	"filippo.io/edwards25519"
	solana "github.com/gagliardetto/solana-go"

	"solexec-go/internal/execerr"
	"solexec-go/internal/metrics"
)

var errEmptyID = execerr.New(execerr.CodeInvalidArgument, "wallet id required")

// Snapshot is a read-only view of a wallet. It never carries key material.
type Snapshot struct {
	ID            string `json:"id"`
	PublicKey     string `json:"pubkey"`
	HasCredential bool   `json:"hasCredential"`
	Balance       uint64 `json:"balance"`
	Busy          bool   `json:"busy"`
}

type entry struct {
	mu      sync.Mutex
	id      string
	pubkey  solana.PublicKey
	key     solana.PrivateKey // nil for watch-only wallets
	balance uint64
	busy    bool
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		ID:            e.id,
		PublicKey:     e.pubkey.String(),
		HasCredential: e.key != nil,
		Balance:       e.balance,
		Busy:          e.busy,
	}
}

// setBusy must be called with e.mu held.
func (e *entry) setBusy(v bool) {
	if e.busy == v {
		return
	}
	e.busy = v
	if v {
		metrics.BusyWallets.Inc()
	} else {
		metrics.BusyWallets.Dec()
	}
}

// Pool owns wallet records keyed by logical id. The map lock is only held for
// lookups and inserts; each record has its own mutex, so work on different ids
// does not contend.
//
// The busy flag is a visible marker, not a lock on pipeline execution. A
// scheduler should call TryAcquire before dispatching work for a wallet and
// run the returned release in a defer.
type Pool struct {
	mu      sync.RWMutex
	wallets map[string]*entry
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{wallets: make(map[string]*entry)}
}

// Register inserts or replaces a wallet with balance 0 and busy=false.
// With a credential the public key is derived from it and must match
// publicKey when one is supplied. Without a credential the wallet is
// watch-only and publicKey must be a valid ed25519 point.
func (p *Pool) Register(id, publicKey string, cred solana.PrivateKey) error {
	if id == "" {
		return errEmptyID
	}
	e := &entry{id: id}
	if cred != nil {
		pub, err := derivePublicKey(cred)
		if err != nil {
			return execerr.Wrap(execerr.ErrInvalidCredential, err).With("wallet", id)
		}
		if publicKey != "" {
			want, err := solana.PublicKeyFromBase58(publicKey)
			if err != nil || !want.Equals(pub) {
				return execerr.ErrInvalidCredential.With("wallet", id).With("reason", "public key mismatch")
			}
		}
		e.pubkey = pub
		e.key = append(solana.PrivateKey(nil), cred...)
	} else {
		pub, err := parseWatchOnlyKey(publicKey)
		if err != nil {
			return execerr.Wrap(execerr.ErrInvalidCredential, err).With("wallet", id)
		}
		e.pubkey = pub
	}

	p.mu.Lock()
	old := p.wallets[id]
	p.wallets[id] = e
	p.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.setBusy(false)
		old.mu.Unlock()
	}
	return nil
}

func derivePublicKey(cred solana.PrivateKey) (solana.PublicKey, error) {
	if len(cred) != ed25519.PrivateKeySize {
		return solana.PublicKey{}, errInvalidKeyLength(len(cred))
	}
	derived := ed25519.NewKeyFromSeed(cred[:ed25519.SeedSize])
	pub := solana.PublicKeyFromBytes(derived[ed25519.SeedSize:])
	if !pub.Equals(cred.PublicKey()) {
		return solana.PublicKey{}, errKeyPairMismatch
	}
	return pub, nil
}

func parseWatchOnlyKey(publicKey string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(publicKey)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, err := new(edwards25519.Point).SetBytes(pub.Bytes()); err != nil {
		return solana.PublicKey{}, errOffCurve
	}
	return pub, nil
}

func (p *Pool) lookup(id string) (*entry, error) {
	p.mu.RLock()
	e, ok := p.wallets[id]
	p.mu.RUnlock()
	if !ok {
		return nil, execerr.ErrWalletNotFound.With("wallet", id)
	}
	return e, nil
}

// Balance returns the cached balance in lamports.
func (p *Pool) Balance(id string) (uint64, error) {
	e, err := p.lookup(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, nil
}

// RefreshBalance overwrites the cached balance with a value the caller read
// from the network.
func (p *Pool) RefreshBalance(id string, value uint64) error {
	e, err := p.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.balance = value
	e.mu.Unlock()
	return nil
}

// SetBusy sets the busy flag.
func (p *Pool) SetBusy(id string, value bool) error {
	e, err := p.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.setBusy(value)
	e.mu.Unlock()
	return nil
}

// TryAcquire flips busy from false to true and returns a release func that
// clears it. Release is safe to call more than once.
func (p *Pool) TryAcquire(id string) (release func(), err error) {
	e, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return nil, execerr.ErrWalletBusy.With("wallet", id)
	}
	e.setBusy(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.setBusy(false)
			e.mu.Unlock()
		})
	}, nil
}

// Snapshot returns a copy of the wallet record without its credential.
func (p *Pool) Snapshot(id string) (Snapshot, error) {
	e, err := p.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// Snapshots returns every wallet sorted by id.
func (p *Pool) Snapshots() []Snapshot {
	p.mu.RLock()
	entries := make([]*entry, 0, len(p.wallets))
	for _, e := range p.wallets {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs lists registered wallet ids in sorted order.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.wallets))
	for id := range p.wallets {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// PublicKey returns the wallet's public key.
func (p *Pool) PublicKey(id string) (solana.PublicKey, error) {
	e, err := p.lookup(id)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return e.pubkey, nil
}

// Signer returns the public key of a wallet that can sign, without touching
// the credential itself.
func (p *Pool) Signer(id string) (solana.PublicKey, error) {
	e, err := p.lookup(id)
	if err != nil {
		return solana.PublicKey{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return solana.PublicKey{}, execerr.ErrCredentialUnavailable.With("wallet", id)
	}
	return e.pubkey, nil
}

// Sign adds the wallet's signature to tx. The key is only referenced while
// the record lock is held.
func (p *Pool) Sign(id string, tx *solana.Transaction) error {
	e, err := p.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return execerr.ErrCredentialUnavailable.With("wallet", id)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.pubkey) {
			return &e.key
		}
		return nil
	})
	if err != nil {
		return execerr.Wrap(execerr.ErrCredentialUnavailable, err).With("wallet", id)
	}
	return nil
}
