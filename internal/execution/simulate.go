package execution

import (
	"context"
	"strconv"

	"solexec-go/internal/metrics"
)

const (
	sourceQuoter   = "quoter"
	sourceFallback = "fallback"
)

// Simulate prices an intent. It reads no wallet or endpoint state, so the
// same intent and quote policy always give the same result. Failures are
// reported in the result rather than as an error.
func (x *Executor) Simulate(ctx context.Context, intent SwapIntent) SimResult {
	res := x.simulate(ctx, intent)
	metrics.SimulationsTotal.WithLabelValues(res.Source, strconv.FormatBool(res.OK)).Inc()
	return res
}

func (x *Executor) simulate(ctx context.Context, intent SwapIntent) SimResult {
	var q Quoter = x.fallback
	source := sourceFallback
	if x.quoter != nil {
		q, source = x.quoter, sourceQuoter
	}
	if err := intent.Validate(); err != nil {
		return SimResult{Source: source, Error: err.Error()}
	}

	out, impact, err := q.Quote(ctx, intent)
	if err != nil {
		x.log.Warn().Err(err).Str("route", intent.Route).Str("source", source).Msg("quote failed")
		return SimResult{Source: source, Error: err.Error()}
	}
	return SimResult{
		OK:             true,
		ExpectedOutput: out,
		MinOutput:      minOutput(out, intent.SlippageBps),
		PriceImpact:    impact,
		Source:         source,
	}
}
