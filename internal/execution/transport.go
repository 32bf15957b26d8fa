package execution

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

// Transport is what the pipeline needs from one RPC endpoint. Every method
// may be slow or fail; implementations classify failures with execerr codes
// (TRANSPORT for retryable network faults, REJECTED_ON_CHAIN for preflight or
// execution rejection, TIMEOUT when ctx expires while waiting). A status read
// that fails after the cluster accepted the send is execerr.ErrSentUnconfirmed.
type Transport interface {
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	LatestAnchor(ctx context.Context) (Anchor, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction, cfg SendConfig) (*Receipt, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error)
}
