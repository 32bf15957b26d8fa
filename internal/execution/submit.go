package execution

import (
	"context"
	"errors"
	"time"

	"solexec-go/internal/endpoint"
	"solexec-go/internal/execerr"
	"solexec-go/internal/metrics"
)

// Submit sends stx through the current endpoint and waits for confirmation.
// Transport errors are retried with the same signed transaction up to
// MaxAttempts; rejections are not. When ConfirmTimeout or ctx expires the
// result is unconfirmed with code TIMEOUT and must be reconciled by
// signature. Submit never rotates endpoints.
func (x *Executor) Submit(ctx context.Context, stx *SignedTransaction) SubmitResult {
	if stx == nil || stx.Tx == nil || len(stx.Tx.Signatures) == 0 {
		return x.report(stx, "", nil, 0, execerr.ErrInvalidIntent.With("reason", "unsigned transaction"))
	}
	ep, err := x.endpoints.Current()
	if err != nil {
		return x.report(stx, "", nil, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.submit.ConfirmTimeout)
	defer cancel()

	receipt, attempts, err := x.sendWithRetry(ctx, ep, stx)
	return x.report(stx, ep.Name, receipt, attempts, err)
}

func (x *Executor) sendWithRetry(ctx context.Context, ep endpoint.Endpoint[Transport], stx *SignedTransaction) (*Receipt, int, error) {
	cfg := SendConfig{
		SkipPreflight:       false,
		PreflightCommitment: x.submit.Commitment,
		Commitment:          x.submit.Commitment,
	}
	delay := x.submit.RetryDelay
	sig := stx.Signature().String()

	for attempt := 1; ; attempt++ {
		metrics.SubmitAttemptsTotal.WithLabelValues(ep.Name).Inc()
		receipt, err := ep.Client.SendAndConfirm(ctx, stx.Tx, cfg)
		if err == nil {
			return receipt, attempt, nil
		}
		err = classifySendError(ctx, err)
		if !execerr.Retryable(err) || attempt >= x.submit.MaxAttempts {
			return nil, attempt, err
		}
		x.log.Warn().Err(err).Str("sig", sig).Str("endpoint", ep.Name).Int("attempt", attempt).Msg("send failed, retrying")

		select {
		case <-ctx.Done():
			return nil, attempt, classifySendError(ctx, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > x.submit.MaxRetryDelay {
			delay = x.submit.MaxRetryDelay
		}
	}
}

// classifySendError maps a send failure onto the taxonomy. Apart from a
// definite rejection, an expired or cancelled context means the outcome is
// unknown, whatever the transport reported. ErrSentUnconfirmed keeps its
// TIMEOUT code and is never retried.
func classifySendError(ctx context.Context, err error) error {
	switch {
	case execerr.CodeOf(err) == execerr.CodeRejectedOnChain:
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if execerr.CodeOf(err) == execerr.CodeTimeout {
			return err
		}
		return execerr.Wrap(execerr.ErrConfirmTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return execerr.Wrap(execerr.ErrSubmitAborted, err)
	case execerr.CodeOf(err) != execerr.CodeUnknown:
		return err
	default:
		return execerr.Wrap(execerr.ErrEndpointUnavailable, err)
	}
}
