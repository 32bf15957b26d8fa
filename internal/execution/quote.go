package execution

import (
	"context"
	"errors"
	"math/big"
)

// Quoter supplies expected output and price impact for an intent. Real
// deployments plug in a route/quote provider here.
type Quoter interface {
	Quote(ctx context.Context, intent SwapIntent) (expectedOutput uint64, priceImpact float64, err error)
}

// QuoterFunc adapts a function to Quoter.
type QuoterFunc func(ctx context.Context, intent SwapIntent) (uint64, float64, error)

// Quote calls f.
func (f QuoterFunc) Quote(ctx context.Context, intent SwapIntent) (uint64, float64, error) {
	return f(ctx, intent)
}

// FlatRatio is the stand-in policy used when no Quoter is wired: output is
// AmountIn * Numerator / Denominator and price impact is 1 - ratio. It is a
// placeholder, not a degraded mode.
type FlatRatio struct {
	Numerator   uint64
	Denominator uint64
}

// DefaultFallback discounts 5%.
var DefaultFallback = FlatRatio{Numerator: 95, Denominator: 100}

var errBadRatio = errors.New("fallback ratio must satisfy 0 < numerator <= denominator")

// Quote implements Quoter.
func (r FlatRatio) Quote(_ context.Context, intent SwapIntent) (uint64, float64, error) {
	if r.Denominator == 0 || r.Numerator == 0 || r.Numerator > r.Denominator {
		return 0, 0, errBadRatio
	}
	out := mulDiv(intent.AmountIn, r.Numerator, r.Denominator)
	impact := float64(r.Denominator-r.Numerator) / float64(r.Denominator)
	return out, impact, nil
}

// mulDiv computes a*b/c without overflowing; c must be non-zero and the
// result must fit (callers only scale down).
func mulDiv(a, b, c uint64) uint64 {
	x := new(big.Int).SetUint64(a)
	x.Mul(x, new(big.Int).SetUint64(b))
	x.Quo(x, new(big.Int).SetUint64(c))
	return x.Uint64()
}

// minOutput applies slippage tolerance to an expected output.
func minOutput(expected uint64, slippageBps uint16) uint64 {
	return mulDiv(expected, uint64(maxSlippageBps-int(slippageBps)), maxSlippageBps)
}
