package execution

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"solexec-go/internal/execerr"
	"solexec-go/internal/metrics"
)

// PreSign builds and signs the transaction for intent with walletID's key.
// The only network call is the anchor fetch, and it happens after the wallet
// is known to hold a credential. Nothing is sent.
func (x *Executor) PreSign(ctx context.Context, walletID string, intent SwapIntent) (*SignedTransaction, error) {
	stx, err := x.preSign(ctx, walletID, intent)
	code := ""
	if err != nil {
		code = string(execerr.CodeOf(err))
		x.log.Warn().Err(err).Str("wallet", walletID).Msg("pre-sign failed")
	}
	metrics.PreSignTotal.WithLabelValues(code).Inc()
	return stx, err
}

func (x *Executor) preSign(ctx context.Context, walletID string, intent SwapIntent) (*SignedTransaction, error) {
	if intent.WalletID == "" {
		intent.WalletID = walletID
	}
	if intent.WalletID != walletID {
		return nil, execerr.ErrInvalidIntent.With("reason", "wallet id mismatch")
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	owner, err := x.wallets.Signer(walletID)
	if err != nil {
		return nil, err
	}

	ep, err := x.endpoints.Current()
	if err != nil {
		return nil, err
	}
	anchor, err := ep.Client.LatestAnchor(ctx)
	if err != nil {
		if execerr.CodeOf(err) == execerr.CodeUnknown {
			err = execerr.Wrap(execerr.ErrEndpointUnavailable, err)
		}
		return nil, fmt.Errorf("fetch anchor from %s: %w", ep.Name, err)
	}

	ixs, err := x.adapter.Instructions(ctx, owner, intent)
	if err != nil {
		return nil, fmt.Errorf("build instructions: %w", err)
	}
	tx, err := solana.NewTransaction(ixs, anchor.Blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := x.wallets.Sign(walletID, tx); err != nil {
		return nil, err
	}

	stx := &SignedTransaction{
		WalletID:             walletID,
		Owner:                owner,
		Intent:               intent,
		Tx:                   tx,
		LastValidBlockHeight: anchor.LastValidBlockHeight,
		Endpoint:             ep.Name,
	}
	x.log.Debug().Str("wallet", walletID).Str("sig", stx.Signature().String()).Str("endpoint", ep.Name).Msg("pre-signed")
	return stx, nil
}
