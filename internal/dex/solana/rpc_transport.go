package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"solexec-go/internal/endpoint"
	"solexec-go/internal/execerr"
	"solexec-go/internal/execution"
)

// JSON-RPC codes the cluster uses for transactions it will never land.
const (
	codePreflightFailure   = -32002
	codeSignatureFailure   = -32003
	alreadyProcessedSubstr = "already been processed"
)

const defaultPollInterval = 500 * time.Millisecond

// RPCTransport implements execution.Transport over a single JSON-RPC endpoint.
// When Watcher is set, confirmation also listens on the websocket and
// whichever of the two sees the signature first wins.
type RPCTransport struct {
	RPC          *rpc.Client
	Commit       rpc.CommitmentType
	PollInterval time.Duration
	Watcher      *SignatureWatcher
}

// NewRPCTransport dials nothing; rpc.Client connects per request.
func NewRPCTransport(rpcURL, commit string) *RPCTransport {
	return &RPCTransport{
		RPC:          rpc.New(rpcURL),
		Commit:       ParseCommitment(commit),
		PollInterval: defaultPollInterval,
	}
}

// ParseCommitment maps a config string to a commitment level, defaulting to
// confirmed.
func ParseCommitment(commit string) rpc.CommitmentType {
	switch strings.ToLower(commit) {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// PoolConfig describes the endpoints of a pool. WSURLs pairs with RPCURLs by
// index; a missing or blank entry leaves that endpoint on polling only.
type PoolConfig struct {
	RPCURLs      []string
	WSURLs       []string
	Commitment   string
	PollInterval time.Duration
	Log          zerolog.Logger
}

// NewEndpointPool builds the rotating pool, naming each endpoint by its URL.
// A non-positive poll interval keeps the default.
func NewEndpointPool(cfg PoolConfig) *endpoint.Pool[execution.Transport] {
	eps := make([]endpoint.Endpoint[execution.Transport], 0, len(cfg.RPCURLs))
	for i, u := range cfg.RPCURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		tr := NewRPCTransport(u, cfg.Commitment)
		if cfg.PollInterval > 0 {
			tr.PollInterval = cfg.PollInterval
		}
		if i < len(cfg.WSURLs) {
			tr.Watcher = NewSignatureWatcher(cfg.WSURLs[i], cfg.Log)
		}
		eps = append(eps, endpoint.Endpoint[execution.Transport]{Name: u, Client: tr})
	}
	return endpoint.NewPool(eps...)
}

// Balance implements execution.Transport.
func (t *RPCTransport) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := t.RPC.GetBalance(ctx, owner, t.Commit)
	if err != nil {
		return 0, classify(err)
	}
	return out.Value, nil
}

// LatestAnchor implements execution.Transport.
func (t *RPCTransport) LatestAnchor(ctx context.Context) (execution.Anchor, error) {
	out, err := t.RPC.GetLatestBlockhash(ctx, t.Commit)
	if err != nil {
		return execution.Anchor{}, classify(err)
	}
	if out == nil || out.Value == nil {
		return execution.Anchor{}, execerr.ErrEndpointUnavailable.With("reason", "empty blockhash response")
	}
	return execution.Anchor{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendAndConfirm implements execution.Transport. It sends once, then polls
// the signature until it reaches cfg.Commitment, fails, or ctx ends. A
// resend of a transaction the cluster already holds goes straight to polling.
// Once the send is accepted, a failed status read is ErrSentUnconfirmed, never
// a transport error, so the caller does not resend.
func (t *RPCTransport) SendAndConfirm(ctx context.Context, tx *solana.Transaction, cfg execution.SendConfig) (*execution.Receipt, error) {
	if len(tx.Signatures) == 0 {
		return nil, execerr.ErrInvalidIntent.With("reason", "unsigned transaction")
	}
	sig, err := t.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       cfg.SkipPreflight,
		PreflightCommitment: cfg.PreflightCommitment,
	})
	switch {
	case err == nil:
	case isAlreadyProcessed(err):
		sig = tx.Signatures[0]
	default:
		return nil, classify(err)
	}

	commit := cfg.Commitment
	if commit == "" {
		commit = t.Commit
	}
	if err := t.awaitStatus(ctx, sig, commit); err != nil {
		if ctx.Err() != nil || execerr.CodeOf(err) == execerr.CodeRejectedOnChain {
			return nil, err
		}
		// The cluster accepted the transaction; only the status read failed.
		return nil, execerr.Wrap(execerr.ErrSentUnconfirmed, err).With("sig", sig.String())
	}
	return t.receipt(ctx, sig, commit), nil
}

func (t *RPCTransport) awaitStatus(ctx context.Context, sig solana.Signature, commit rpc.CommitmentType) error {
	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var watched chan error
	if t.Watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		watched = make(chan error, 1)
		go func() { watched <- t.Watcher.Await(watchCtx, sig, commit) }()
	}

	for {
		st, err := t.SignatureStatus(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if st.Found && st.Err != "" {
			return execerr.ErrRejected.With("sig", sig.String()).With("err", st.Err)
		}
		if st.Found && reached(st.ConfirmationStatus, commit) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watched:
			if err == nil || execerr.CodeOf(err) == execerr.CodeRejectedOnChain {
				return err
			}
			// Socket trouble: keep polling.
			watched = nil
		case <-ticker.C:
		}
	}
}

// receipt is best effort: a confirmed transaction with no readable meta
// still counts as confirmed, only without settlement data.
func (t *RPCTransport) receipt(ctx context.Context, sig solana.Signature, commit rpc.CommitmentType) *execution.Receipt {
	r := &execution.Receipt{Signature: sig}
	if commit == rpc.CommitmentProcessed {
		commit = rpc.CommitmentConfirmed
	}
	version := uint64(0)
	out, err := t.RPC.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commit,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil || out == nil || out.Meta == nil {
		return r
	}
	meta := out.Meta
	r.Slot = out.Slot
	r.Fee = meta.Fee
	if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
		// Account 0 is the fee payer, which is always the signing wallet.
		r.OwnerLamportsPre = meta.PreBalances[0]
		r.OwnerLamportsPost = meta.PostBalances[0]
	}
	r.PreTokenBalances = tokenBalances(meta.PreTokenBalances)
	r.PostTokenBalances = tokenBalances(meta.PostTokenBalances)
	r.Settled = true
	return r
}

func tokenBalances(in []rpc.TokenBalance) []execution.TokenBalance {
	out := make([]execution.TokenBalance, 0, len(in))
	for _, b := range in {
		if b.Owner == nil || b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, execution.TokenBalance{Owner: b.Owner.String(), Mint: b.Mint.String(), Amount: amount})
	}
	return out
}

// SignatureStatus implements execution.Transport.
func (t *RPCTransport) SignatureStatus(ctx context.Context, sig solana.Signature) (execution.SignatureStatus, error) {
	out, err := t.RPC.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return execution.SignatureStatus{}, classify(err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return execution.SignatureStatus{}, nil
	}
	v := out.Value[0]
	st := execution.SignatureStatus{Found: true, Slot: v.Slot, ConfirmationStatus: v.ConfirmationStatus}
	if v.Err != nil {
		st.Err = fmt.Sprint(v.Err)
	}
	return st, nil
}

func reached(have rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return have == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return have != ""
	default:
		return have == rpc.ConfirmationStatusConfirmed || have == rpc.ConfirmationStatusFinalized
	}
}

func isAlreadyProcessed(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return strings.Contains(rpcErr.Message, alreadyProcessedSubstr) ||
			strings.Contains(fmt.Sprint(rpcErr.Data), alreadyProcessedSubstr)
	}
	return strings.Contains(err.Error(), alreadyProcessedSubstr)
}

// classify tags RPC failures: preflight and signature failures are
// rejections, context errors pass through, everything else is transport.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		// The message alone; RPCError formats its data as a multi-line dump.
		cause := errors.New(rpcErr.Message)
		switch rpcErr.Code {
		case codePreflightFailure, codeSignatureFailure:
			return execerr.Wrap(execerr.ErrRejected, cause).With("rpc_code", strconv.Itoa(rpcErr.Code))
		}
		return execerr.Wrap(execerr.ErrEndpointUnavailable, cause).With("rpc_code", strconv.Itoa(rpcErr.Code))
	}
	return execerr.Wrap(execerr.ErrEndpointUnavailable, err)
}
