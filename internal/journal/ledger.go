// Package journal keeps submission reports so outcomes can be inspected and
// unknown ones reconciled by signature.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"solexec-go/internal/execution"
)

// Entry is one recorded submission.
type Entry struct {
	ID       string                 `json:"id"`
	At       time.Time              `json:"at"`
	WalletID string                 `json:"walletId"`
	Intent   execution.SwapIntent   `json:"intent"`
	Result   execution.SubmitResult `json:"result"`
}

func newEntry(r execution.Report) Entry {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Entry{ID: uuid.NewString(), At: at, WalletID: r.WalletID, Intent: r.Intent, Result: r.Result}
}

// WalletSummary aggregates a wallet's submissions by outcome.
type WalletSummary struct {
	Submissions int    `json:"submissions"`
	Filled      int    `json:"filled"`
	Partial     int    `json:"partial"`
	Rejected    int    `json:"rejected"`
	Failed      int    `json:"failed"`
	Unknown     int    `json:"unknown"`
	VolumeIn    uint64 `json:"volumeIn"`
	FilledOut   uint64 `json:"filledOut"`
}

// Ledger stores entries in memory for quick inspection.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	bySig   map[string]int
	out     *JSONLRecorder
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{entries: make([]Entry, 0, capacity), bySig: make(map[string]int, capacity)}
}

// WriteThrough appends every recorded and resolved entry to out, so a
// replay after restart sees the latest result of each signature.
func (l *Ledger) WriteThrough(out *JSONLRecorder) {
	l.mu.Lock()
	l.out = out
	l.mu.Unlock()
}

// Record implements execution.Recorder.
func (l *Ledger) Record(r execution.Report) {
	l.recordEntry(newEntry(r))
}

func (l *Ledger) recordEntry(e Entry) Entry {
	stored, out := l.add(e)
	if out != nil {
		out.recordEntry(stored)
	}
	return stored
}

// add stores e and returns it as stored. Replay goes through add directly and
// never writes through.
func (l *Ledger) add(e Entry) (Entry, *JSONLRecorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A resubmission of the same signature replaces the earlier result.
	if sig := e.Result.Signature; sig != "" {
		if i, ok := l.bySig[sig]; ok {
			e.ID = l.entries[i].ID
			l.entries[i] = e
			return e, l.out
		}
		l.bySig[sig] = len(l.entries)
	}
	l.entries = append(l.entries, e)
	return e, l.out
}

// Find returns the latest entry for a signature.
func (l *Ledger) Find(signature string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.bySig[signature]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Resolve replaces the result for a known signature, typically after
// reconciliation. It reports whether the signature was known.
func (l *Ledger) Resolve(signature string, res execution.SubmitResult) bool {
	l.mu.Lock()
	i, ok := l.bySig[signature]
	if !ok {
		l.mu.Unlock()
		return false
	}
	l.entries[i].Result = res
	e, out := l.entries[i], l.out
	l.mu.Unlock()

	if out != nil {
		out.recordEntry(e)
	}
	return true
}

// Unresolved lists entries whose outcome is still unknown, oldest first.
func (l *Ledger) Unresolved() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Result.Outcome == execution.OutcomeUnknown {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Summary aggregates entries per wallet.
func (l *Ledger) Summary() map[string]WalletSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]WalletSummary)
	for _, e := range l.entries {
		s := out[e.WalletID]
		s.Submissions++
		switch e.Result.Outcome {
		case execution.OutcomeFilled:
			s.Filled++
			s.VolumeIn += e.Intent.AmountIn
			s.FilledOut += e.Result.FillQty
		case execution.OutcomePartial:
			s.Partial++
			s.VolumeIn += e.Intent.AmountIn
		case execution.OutcomeRejected:
			s.Rejected++
		case execution.OutcomeFailed:
			s.Failed++
		default:
			s.Unknown++
		}
		out[e.WalletID] = s
	}
	return out
}

// Snapshot returns a copy of the recorded entries.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset clears all stored entries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.bySig = make(map[string]int)
	l.mu.Unlock()
}

// LookupFunc resolves a signature's current on-chain result.
type LookupFunc func(ctx context.Context, signature string) (execution.SubmitResult, error)

// ReconcileUnresolved looks up every unknown entry and stores results that
// are no longer unknown. It returns how many entries were resolved; lookup
// failures are joined and do not stop the pass.
func (l *Ledger) ReconcileUnresolved(ctx context.Context, lookup LookupFunc) (int, error) {
	var errs []error
	n := 0
	for _, e := range l.Unresolved() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sig := e.Result.Signature
		if sig == "" {
			continue
		}
		res, err := lookup(ctx, sig)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", sig, err))
			continue
		}
		if res.Outcome == execution.OutcomeUnknown {
			continue
		}
		res.Attempts = e.Result.Attempts
		if l.Resolve(sig, res) {
			n++
		}
	}
	return n, errors.Join(errs...)
}
