package execution

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solexec-go/internal/execerr"
)

// RefreshBalance reads the wallet's lamport balance through the current
// endpoint and stores it in the pool cache.
func (x *Executor) RefreshBalance(ctx context.Context, walletID string) (uint64, error) {
	owner, err := x.wallets.PublicKey(walletID)
	if err != nil {
		return 0, err
	}
	ep, err := x.endpoints.Current()
	if err != nil {
		return 0, err
	}
	bal, err := ep.Client.Balance(ctx, owner)
	if err != nil {
		if execerr.CodeOf(err) == execerr.CodeUnknown {
			err = execerr.Wrap(execerr.ErrEndpointUnavailable, err)
		}
		return 0, fmt.Errorf("balance from %s: %w", ep.Name, err)
	}
	if err := x.wallets.RefreshBalance(walletID, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

// RefreshAll refreshes every registered wallet, continuing past failures.
func (x *Executor) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, id := range x.wallets.IDs() {
		if _, err := x.RefreshBalance(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reconcile looks a signature up on the current endpoint. It resolves
// submissions whose outcome was unknown (timeout or abort). Fill data is not
// derived here.
func (x *Executor) Reconcile(ctx context.Context, signature string) (SubmitResult, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return SubmitResult{}, execerr.Wrap(execerr.ErrInvalidIntent, err).With("sig", signature)
	}
	ep, err := x.endpoints.Current()
	if err != nil {
		return SubmitResult{}, err
	}
	st, err := ep.Client.SignatureStatus(ctx, sig)
	if err != nil {
		if execerr.CodeOf(err) == execerr.CodeUnknown {
			err = execerr.Wrap(execerr.ErrEndpointUnavailable, err)
		}
		return SubmitResult{}, err
	}

	res := SubmitResult{Signature: signature, Endpoint: ep.Name}
	switch {
	case !st.Found:
		res.Outcome = OutcomeUnknown
		res.Code = execerr.CodeNotFound
		res.Error = "signature not found"
	case st.Err != "":
		res.Outcome = OutcomeRejected
		res.Code = execerr.CodeRejectedOnChain
		res.Error = st.Err
	case st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
		res.Confirmed = true
		res.Outcome = OutcomePartial
		res.Code = execerr.CodeFillUnavailable
		res.Error = execerr.ErrFillUnavailable.Message()
	default:
		res.Outcome = OutcomeUnknown
		res.Error = "not yet confirmed: " + string(st.ConfirmationStatus)
	}
	return res, nil
}

// SubmitWithFailover is the caller-level failover loop: after a transport
// failure it rotates the endpoint pool and resubmits the same transaction, up
// to maxEndpoints endpoints. Rejections and timeouts end the loop, since a
// rejected transaction needs a fresh pre-sign and a timed-out one needs
// reconciliation.
func (x *Executor) SubmitWithFailover(ctx context.Context, stx *SignedTransaction, maxEndpoints int) SubmitResult {
	if n := x.endpoints.Len(); maxEndpoints <= 0 || maxEndpoints > n {
		maxEndpoints = n
	}
	var res SubmitResult
	for i := 0; ; i++ {
		res = x.Submit(ctx, stx)
		if res.Confirmed || res.Code != execerr.CodeTransport || i+1 >= maxEndpoints {
			return res
		}
		x.log.Warn().Str("sig", res.Signature).Str("endpoint", res.Endpoint).Msg("rotating endpoint after transport failure")
		x.endpoints.Rotate()
	}
}
