// Package api exposes the executor over HTTP for the orchestrator.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solexec-go/internal/execerr"
	"solexec-go/internal/execution"
	"solexec-go/internal/journal"
	"solexec-go/internal/risk"
)

// pendingTTL outlives a blockhash, after which a pre-signed transaction can
// no longer land anyway.
const pendingTTL = 3 * time.Minute

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to an Executor. Pre-signed transactions are
// remembered by signature so /submit can recover the wallet and intent.
type Server struct {
	exec   *execution.Executor
	limits risk.Limits
	ledger *journal.Ledger
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[string]pendingTx
}

type pendingTx struct {
	stx     *execution.SignedTransaction
	created time.Time
}

type Option func(*Server)

func WithLimits(l risk.Limits) Option { return func(s *Server) { s.limits = l } }

// WithLedger enables /journal/summary and resolves ledger entries on lookup.
func WithLedger(l *journal.Ledger) Option { return func(s *Server) { s.ledger = l } }

func WithLogger(log zerolog.Logger) Option { return func(s *Server) { s.log = log } }

func New(exec *execution.Executor, opts ...Option) *Server {
	s := &Server{exec: exec, log: zerolog.Nop(), pending: make(map[string]pendingTx)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /simulate", s.handleSimulate)
	mux.HandleFunc("POST /pre-sign", s.handlePreSign)
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("GET /wallets", s.handleWallets)
	mux.HandleFunc("GET /wallet/{id}/balance", s.handleBalance)
	mux.HandleFunc("POST /wallet/{id}/busy", s.handleBusy)
	mux.HandleFunc("GET /wallet/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /rpc", s.handleEndpoints)
	mux.HandleFunc("POST /rpc/rotate", s.handleRotate)
	mux.HandleFunc("GET /signature/{sig}", s.handleSignature)
	mux.HandleFunc("GET /journal/summary", s.handleJournal)
	return s.logRequests(mux)
}

type preSignRequest struct {
	WalletID string               `json:"walletId"`
	Intent   execution.SwapIntent `json:"intent"`
}

type preSignResponse struct {
	Transaction          string `json:"transaction"`
	Signature            string `json:"signature"`
	WalletID             string `json:"walletId"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type submitRequest struct {
	Transaction string `json:"transaction"`
	// Failover rotates endpoints after transport failures.
	Failover bool `json:"failover,omitempty"`
}

type busyRequest struct {
	Busy *bool `json:"busy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"wallets":   len(s.exec.Wallets().IDs()),
		"endpoints": s.exec.Endpoints().Len(),
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var intent execution.SwapIntent
	if !s.decode(w, r, &intent) {
		return
	}
	if err := s.limits.Allow(intent); err != nil {
		writeJSON(w, http.StatusOK, execution.SimResult{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.exec.Simulate(r.Context(), intent))
}

func (s *Server) handlePreSign(w http.ResponseWriter, r *http.Request) {
	var req preSignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.WalletID == "" {
		req.WalletID = req.Intent.WalletID
	}
	if err := s.limits.Allow(req.Intent); err != nil {
		writeError(w, err)
		return
	}
	stx, err := s.exec.PreSign(r.Context(), req.WalletID, req.Intent)
	if err != nil {
		writeError(w, err)
		return
	}
	encoded, err := stx.Base64()
	if err != nil {
		writeError(w, err)
		return
	}
	sig := stx.Signature().String()
	s.remember(sig, stx)
	writeJSON(w, http.StatusOK, preSignResponse{
		Transaction:          encoded,
		Signature:            sig,
		WalletID:             stx.WalletID,
		LastValidBlockHeight: stx.LastValidBlockHeight,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	stx, err := s.resolve(req.Transaction)
	if err != nil {
		writeError(w, err)
		return
	}
	var res execution.SubmitResult
	if req.Failover {
		res = s.exec.SubmitWithFailover(r.Context(), stx, 0)
	} else {
		res = s.exec.Submit(r.Context(), stx)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWallets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.exec.Wallets().Snapshots())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bal, err := s.exec.RefreshBalance(r.Context(), id)
	stale := false
	if err != nil {
		if errors.Is(err, execerr.ErrWalletNotFound) {
			writeError(w, err)
			return
		}
		cached, cerr := s.exec.Wallets().Balance(id)
		if cerr != nil {
			writeError(w, cerr)
			return
		}
		s.log.Warn().Err(err).Str("wallet", id).Msg("balance refresh failed, serving cached value")
		bal, stale = cached, true
	}
	writeJSON(w, http.StatusOK, map[string]any{"walletId": id, "balance": bal, "stale": stale})
}

func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req busyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Busy == nil {
		writeError(w, execerr.New(execerr.CodeInvalidArgument, "busy flag required"))
		return
	}
	if err := s.exec.Wallets().SetBusy(id, *req.Busy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"walletId": id, "busy": *req.Busy})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.exec.Wallets().Snapshot(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	pool := s.exec.Endpoints()
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": pool.Names(), "index": pool.Index()})
}

func (s *Server) handleRotate(w http.ResponseWriter, _ *http.Request) {
	pool := s.exec.Endpoints()
	pool.Rotate()
	ep, err := pool.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info().Str("endpoint", ep.Name).Msg("endpoint rotated")
	writeJSON(w, http.StatusOK, map[string]any{"endpoint": ep.Name, "index": pool.Index()})
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	sig := r.PathValue("sig")
	res, err := s.exec.Reconcile(r.Context(), sig)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.ledger != nil && res.Outcome != execution.OutcomeUnknown {
		if entry, ok := s.ledger.Find(sig); ok && entry.Result.Outcome == execution.OutcomeUnknown {
			res.Attempts = entry.Result.Attempts
			s.ledger.Resolve(sig, res)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJournal(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		writeError(w, execerr.New(execerr.CodeUnavailable, "journal disabled"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallets":    s.ledger.Summary(),
		"unresolved": s.ledger.Unresolved(),
	})
}

func (s *Server) remember(sig string, stx *execution.SignedTransaction) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.pending {
		if now.Sub(p.created) > pendingTTL {
			delete(s.pending, k)
		}
	}
	s.pending[sig] = pendingTx{stx: stx, created: now}
}

// resolve maps a wire transaction back to the pre-signed context. A
// transaction this process did not sign is accepted when its fee payer is a
// registered wallet; its fill cannot be derived without the intent.
func (s *Server) resolve(encoded string) (*execution.SignedTransaction, error) {
	if encoded == "" {
		return nil, execerr.ErrInvalidIntent.With("reason", "transaction required")
	}
	tx, err := execution.DecodeTransaction(encoded)
	if err != nil {
		return nil, execerr.Wrap(execerr.ErrInvalidIntent, err)
	}
	if len(tx.Signatures) == 0 {
		return nil, execerr.ErrInvalidIntent.With("reason", "unsigned transaction")
	}
	sig := tx.Signatures[0].String()

	s.mu.Lock()
	p, ok := s.pending[sig]
	s.mu.Unlock()
	if ok {
		return p.stx, nil
	}

	if len(tx.Message.AccountKeys) == 0 {
		return nil, execerr.ErrInvalidIntent.With("reason", "transaction has no fee payer")
	}
	payer := tx.Message.AccountKeys[0]
	stx := &execution.SignedTransaction{Owner: payer, Tx: tx}
	if id, ok := s.walletFor(payer); ok {
		stx.WalletID = id
	}
	return stx, nil
}

func (s *Server) walletFor(key solana.PublicKey) (string, bool) {
	pool := s.exec.Wallets()
	for _, id := range pool.IDs() {
		if pk, err := pool.PublicKey(id); err == nil && pk.Equals(key) {
			return id, true
		}
	}
	return "", false
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, execerr.Wrap(execerr.New(execerr.CodeInvalidArgument, "malformed request body"), err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := execerr.CodeOf(err)
	writeJSON(w, statusFor(code), map[string]string{"error": err.Error(), "code": string(code)})
}

func statusFor(code execerr.Code) int {
	switch code {
	case execerr.CodeInvalidArgument:
		return http.StatusBadRequest
	case execerr.CodeNotFound:
		return http.StatusNotFound
	case execerr.CodeBusy:
		return http.StatusConflict
	case execerr.CodeRejectedOnChain:
		return http.StatusUnprocessableEntity
	case execerr.CodeTransport:
		return http.StatusBadGateway
	case execerr.CodeUnavailable:
		return http.StatusServiceUnavailable
	case execerr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		ev := s.log.Debug()
		if sw.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
