package execution

import (
	"errors"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"solexec-go/internal/execerr"
	"solexec-go/internal/metrics"
)

// Report is what a Recorder receives for every submission.
type Report struct {
	WalletID string
	Intent   SwapIntent
	Result   SubmitResult
	At       time.Time
}

// Recorder stores submission reports, typically for later reconciliation.
type Recorder interface {
	Record(Report)
}

// report normalizes a send outcome into a SubmitResult, then logs, counts and
// records it.
func (x *Executor) report(stx *SignedTransaction, endpointName string, receipt *Receipt, attempts int, sendErr error) SubmitResult {
	res := SubmitResult{Attempts: attempts, Endpoint: endpointName}
	if sig := stx.Signature(); sig != (solana.Signature{}) {
		res.Signature = sig.String()
	}

	if sendErr != nil {
		res.Code = execerr.CodeOf(sendErr)
		res.Outcome = outcomeFor(res.Code)
		res.Error = sendErr.Error()
	} else {
		res.Confirmed = true
		if receipt != nil && receipt.Signature != (solana.Signature{}) {
			res.Signature = receipt.Signature.String()
		}
		fill, err := x.adapter.Fill(stx, receipt)
		if err != nil {
			res.Outcome = OutcomePartial
			res.Code = execerr.CodeFillUnavailable
			if !errors.Is(err, execerr.ErrFillUnavailable) {
				err = execerr.Wrap(execerr.ErrFillUnavailable, err)
			}
			res.Error = err.Error()
		} else {
			res.Outcome = OutcomeFilled
			res.FillAvailable = true
			res.FillQty = fill.Qty
			res.FillPrice = fill.Price
		}
	}

	x.logResult(stx, res)
	metrics.SubmissionsTotal.WithLabelValues(string(res.Outcome), string(res.Code)).Inc()
	if x.recorder != nil {
		r := Report{Result: res, At: time.Now().UTC()}
		if stx != nil {
			r.WalletID, r.Intent = stx.WalletID, stx.Intent
		}
		x.recorder.Record(r)
	}
	return res
}

func outcomeFor(code execerr.Code) Outcome {
	switch code {
	case execerr.CodeRejectedOnChain:
		return OutcomeRejected
	case execerr.CodeTimeout:
		return OutcomeUnknown
	default:
		return OutcomeFailed
	}
}

func (x *Executor) logResult(stx *SignedTransaction, res SubmitResult) {
	walletID := ""
	if stx != nil {
		walletID = stx.WalletID
	}
	ev := x.log.Info()
	switch res.Outcome {
	case OutcomeFailed, OutcomeRejected:
		ev = x.log.Error()
	case OutcomeUnknown, OutcomePartial:
		ev = x.log.Warn()
	}
	ev.Str("wallet", walletID).
		Str("sig", res.Signature).
		Str("endpoint", res.Endpoint).
		Str("outcome", string(res.Outcome)).
		Str("code", string(res.Code)).
		Int("attempts", res.Attempts).
		Uint64("fill_qty", res.FillQty).
		Float64("fill_px", res.FillPrice).
		Str("error", res.Error).
		Msg("submit result")
}
