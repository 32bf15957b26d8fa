package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"solexec-go/internal/execerr"
	"solexec-go/internal/execution"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcHandler func(params json.RawMessage) (any, *rpcErrorBody)

// fakeNode answers JSON-RPC calls by method name and counts them.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
}

func newFakeNode(t *testing.T, handlers map[string]rpcHandler) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{handlers: handlers, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		n.mu.Lock()
		n.calls[req.Method]++
		if h, ok := n.handlers[req.Method]; !ok {
			resp["error"] = rpcErrorBody{Code: -32601, Message: "method not found: " + req.Method}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		n.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func signedTransfer(t *testing.T) (*solana.Transaction, solana.PrivateKey) {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	owner := key.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, owner, owner).Build()},
		solana.Hash{1},
		solana.TransactionPayer(owner),
	)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(owner) {
			return &key
		}
		return nil
	}); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx, key
}

func statusResult(status string, txErr any) any {
	return map[string]any{
		"context": map[string]any{"slot": 10},
		"value": []any{map[string]any{
			"slot":               10,
			"confirmations":      nil,
			"err":                txErr,
			"confirmationStatus": status,
		}},
	}
}

func testTransport(url string) *RPCTransport {
	tr := NewRPCTransport(url, "confirmed")
	tr.PollInterval = 5 * time.Millisecond
	return tr
}

func sendCfg() execution.SendConfig {
	return execution.SendConfig{PreflightCommitment: rpc.CommitmentConfirmed, Commitment: rpc.CommitmentConfirmed}
}

func TestParseCommitment(t *testing.T) {
	cases := map[string]rpc.CommitmentType{
		"processed": rpc.CommitmentProcessed,
		"FINALIZED": rpc.CommitmentFinalized,
		"confirmed": rpc.CommitmentConfirmed,
		"":          rpc.CommitmentConfirmed,
	}
	for in, want := range cases {
		if got := ParseCommitment(in); got != want {
			t.Fatalf("ParseCommitment(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewEndpointPoolSkipsBlanks(t *testing.T) {
	pool := NewEndpointPool(PoolConfig{RPCURLs: []string{"https://a", " ", "https://b"}, WSURLs: []string{"wss://a"}, Commitment: "confirmed"})
	if pool.Len() != 2 {
		t.Fatalf("expected 2 endpoints, got %d", pool.Len())
	}
	ep, err := pool.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if ep.Name != "https://a" {
		t.Fatalf("unexpected first endpoint %s", ep.Name)
	}
	if ep.Client.(*RPCTransport).Watcher == nil {
		t.Fatalf("expected a watcher on the first endpoint")
	}
	pool.Rotate()
	ep, _ = pool.Current()
	if ep.Client.(*RPCTransport).Watcher != nil {
		t.Fatalf("expected polling only on the second endpoint")
	}
}

func TestBalanceAndAnchor(t *testing.T) {
	hash := solana.Hash{7, 7, 7}
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"getBalance": func(json.RawMessage) (any, *rpcErrorBody) {
			return map[string]any{"context": map[string]any{"slot": 1}, "value": 4_200_000}, nil
		},
		"getLatestBlockhash": func(json.RawMessage) (any, *rpcErrorBody) {
			return map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   map[string]any{"blockhash": hash.String(), "lastValidBlockHeight": 321},
			}, nil
		},
	})
	tr := testTransport(srv.URL)

	bal, err := tr.Balance(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 4_200_000 {
		t.Fatalf("unexpected balance %d", bal)
	}

	anchor, err := tr.LatestAnchor(context.Background())
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if anchor.Blockhash != hash || anchor.LastValidBlockHeight != 321 {
		t.Fatalf("unexpected anchor %+v", anchor)
	}
}

func TestSendAndConfirmBuildsReceipt(t *testing.T) {
	tx, key := signedTransfer(t)
	owner := key.PublicKey().String()
	mint := solana.NewWallet().PublicKey().String()

	var polls int
	node, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return tx.Signatures[0].String(), nil
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			polls++
			if polls < 2 {
				return map[string]any{"context": map[string]any{"slot": 9}, "value": []any{nil}}, nil
			}
			return statusResult("confirmed", nil), nil
		},
		"getTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return map[string]any{
				"slot": 10,
				"meta": map[string]any{
					"err":              nil,
					"fee":              5000,
					"preBalances":      []uint64{1_000_000, 1},
					"postBalances":     []uint64{995_000, 1},
					"preTokenBalances": []any{},
					"postTokenBalances": []any{map[string]any{
						"accountIndex":  1,
						"mint":          mint,
						"owner":         owner,
						"uiTokenAmount": map[string]any{"amount": "2500", "decimals": 6, "uiAmountString": "0.0025"},
					}},
				},
			}, nil
		},
	})
	tr := testTransport(srv.URL)

	receipt, err := tr.SendAndConfirm(context.Background(), tx, sendCfg())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.Signature != tx.Signatures[0] {
		t.Fatalf("signature mismatch")
	}
	if !receipt.Settled || receipt.Fee != 5000 || receipt.Slot != 10 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.OwnerLamportsPre != 1_000_000 || receipt.OwnerLamportsPost != 995_000 {
		t.Fatalf("unexpected lamports %+v", receipt)
	}
	if len(receipt.PostTokenBalances) != 1 || receipt.PostTokenBalances[0].Amount != 2500 || receipt.PostTokenBalances[0].Owner != owner {
		t.Fatalf("unexpected token balances %+v", receipt.PostTokenBalances)
	}
	if node.count("sendTransaction") != 1 {
		t.Fatalf("expected one send, got %d", node.count("sendTransaction"))
	}
	if node.count("getSignatureStatuses") < 2 {
		t.Fatalf("expected polling, got %d status calls", node.count("getSignatureStatuses"))
	}
}

func TestSendAndConfirmWithoutMetaIsUnsettled(t *testing.T) {
	tx, _ := signedTransfer(t)
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return tx.Signatures[0].String(), nil
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return statusResult("finalized", nil), nil
		},
	})
	receipt, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.Settled {
		t.Fatalf("receipt without meta must not be settled")
	}
}

func TestSendPreflightFailureIsRejected(t *testing.T) {
	tx, _ := signedTransfer(t)
	node, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
		},
	})
	_, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if !errors.Is(err, execerr.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if node.count("getSignatureStatuses") != 0 {
		t.Fatalf("rejected send must not poll")
	}
}

func TestSendRejectionCarriesMessageOnly(t *testing.T) {
	tx, _ := signedTransfer(t)
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
		},
	})
	_, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if err == nil {
		t.Fatalf("expected an error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "Blockhash not found") || !strings.Contains(msg, "rpc_code=-32002") {
		t.Fatalf("unexpected error text %q", msg)
	}
	if strings.Contains(msg, "\n") || strings.Contains(msg, "0x") {
		t.Fatalf("error text should be a single line without pointers: %q", msg)
	}
}

func TestStatusFailureAfterSendIsUnconfirmed(t *testing.T) {
	tx, _ := signedTransfer(t)
	node, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return tx.Signatures[0].String(), nil
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32005, Message: "Node is behind by 120 slots"}
		},
	})
	_, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if !errors.Is(err, execerr.ErrSentUnconfirmed) {
		t.Fatalf("expected sent-unconfirmed, got %v", err)
	}
	if execerr.CodeOf(err) != execerr.CodeTimeout || execerr.Retryable(err) {
		t.Fatalf("unconfirmed send must not be retryable, got %v", err)
	}
	if !strings.Contains(err.Error(), tx.Signatures[0].String()) {
		t.Fatalf("expected signature in error, got %v", err)
	}
	if node.count("sendTransaction") != 1 {
		t.Fatalf("expected one send, got %d", node.count("sendTransaction"))
	}
}

func TestStatusFailureAfterAlreadyProcessedIsUnconfirmed(t *testing.T) {
	tx, _ := signedTransfer(t)
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"}
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32005, Message: "Node is unhealthy"}
		},
	})
	_, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if !errors.Is(err, execerr.ErrSentUnconfirmed) {
		t.Fatalf("expected sent-unconfirmed, got %v", err)
	}
}

func TestSendAlreadyProcessedPollsStatus(t *testing.T) {
	tx, _ := signedTransfer(t)
	node, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return nil, &rpcErrorBody{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"}
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return statusResult("confirmed", nil), nil
		},
	})
	receipt, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if err != nil {
		t.Fatalf("expected confirmation, got %v", err)
	}
	if receipt.Signature != tx.Signatures[0] {
		t.Fatalf("signature mismatch")
	}
	if node.count("getSignatureStatuses") == 0 {
		t.Fatalf("expected status polling")
	}
}

func TestConfirmedWithErrorIsRejected(t *testing.T) {
	tx, _ := signedTransfer(t)
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return tx.Signatures[0].String(), nil
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return statusResult("confirmed", map[string]any{"InstructionError": []any{0, "InvalidAccountData"}}), nil
		},
	})
	_, err := testTransport(srv.URL).SendAndConfirm(context.Background(), tx, sendCfg())
	if execerr.CodeOf(err) != execerr.CodeRejectedOnChain {
		t.Fatalf("expected REJECTED_ON_CHAIN, got %v", err)
	}
}

func TestConfirmWaitEndsWithContext(t *testing.T) {
	tx, _ := signedTransfer(t)
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"sendTransaction": func(json.RawMessage) (any, *rpcErrorBody) {
			return tx.Signatures[0].String(), nil
		},
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return statusResult("processed", nil), nil
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := testTransport(srv.URL).SendAndConfirm(ctx, tx, sendCfg())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestUnreachableEndpointIsTransport(t *testing.T) {
	_, srv := newFakeNode(t, nil)
	url := srv.URL
	srv.Close()

	tx, _ := signedTransfer(t)
	_, err := testTransport(url).SendAndConfirm(context.Background(), tx, sendCfg())
	if execerr.CodeOf(err) != execerr.CodeTransport {
		t.Fatalf("expected TRANSPORT, got %v", err)
	}
	if !execerr.Retryable(err) {
		t.Fatalf("transport errors must be retryable")
	}
}

func TestSignatureStatusNotFound(t *testing.T) {
	_, srv := newFakeNode(t, map[string]rpcHandler{
		"getSignatureStatuses": func(json.RawMessage) (any, *rpcErrorBody) {
			return map[string]any{"context": map[string]any{"slot": 1}, "value": []any{nil}}, nil
		},
	})
	st, err := testTransport(srv.URL).SignatureStatus(context.Background(), solana.Signature{1})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Found {
		t.Fatalf("expected not found")
	}
}
