package risk

import (
	"fmt"

	"solexec-go/internal/execerr"
	"solexec-go/internal/execution"
)

// Limits caps what a single intent may ask for. Zero means unlimited.
type Limits struct {
	MaxAmountIn    uint64
	MaxSlippageBps uint16
}

func (l Limits) Allow(intent execution.SwapIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if l.MaxAmountIn > 0 && intent.AmountIn > l.MaxAmountIn {
		return execerr.ErrInvalidIntent.With("reason", fmt.Sprintf("amountIn %d above limit %d", intent.AmountIn, l.MaxAmountIn))
	}
	if l.MaxSlippageBps > 0 && intent.SlippageBps > l.MaxSlippageBps {
		return execerr.ErrInvalidIntent.With("reason", fmt.Sprintf("slippageBps %d above limit %d", intent.SlippageBps, l.MaxSlippageBps))
	}
	return nil
}
