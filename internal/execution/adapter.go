package execution

import (
	"context"
	"math/big"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	"solexec-go/internal/execerr"
)

// ProgramAdapter turns an intent into program instructions and reads the fill
// back out of the settled transaction. Swapping adapters changes which DEX
// program is called without touching the pipeline.
type ProgramAdapter interface {
	Instructions(ctx context.Context, owner solana.PublicKey, intent SwapIntent) ([]solana.Instruction, error)
	Fill(stx *SignedTransaction, receipt *Receipt) (Fill, error)
}

// NoopAdapter builds a zero-lamport self transfer through the system program.
// It exercises signing and submission end to end without trading.
type NoopAdapter struct{}

// Instructions implements ProgramAdapter.
func (NoopAdapter) Instructions(_ context.Context, owner solana.PublicKey, _ SwapIntent) ([]solana.Instruction, error) {
	return []solana.Instruction{system.NewTransferInstruction(0, owner, owner).Build()}, nil
}

// Fill implements ProgramAdapter.
func (NoopAdapter) Fill(stx *SignedTransaction, receipt *Receipt) (Fill, error) {
	return BalanceDeltaFill(stx, receipt)
}

// BalanceDeltaFill derives the fill from the owner's balance change in the
// output mint. Native SOL output is read from lamports with the fee added
// back. ErrFillUnavailable is returned when the receipt has no settlement data
// or the owner's output balance did not grow.
func BalanceDeltaFill(stx *SignedTransaction, receipt *Receipt) (Fill, error) {
	if stx == nil || receipt == nil || !receipt.Settled {
		return Fill{}, execerr.ErrFillUnavailable
	}
	owner := stx.Owner.String()
	mint := stx.Intent.OutputMint

	qty := tokenDelta(receipt, owner, mint)
	if qty == 0 && mint == solana.SolMint.String() {
		post := receipt.OwnerLamportsPost + receipt.Fee
		if post > receipt.OwnerLamportsPre {
			qty = post - receipt.OwnerLamportsPre
		}
	}
	if qty == 0 {
		return Fill{}, execerr.ErrFillUnavailable.With("mint", mint)
	}

	price := decimal.NewFromBigInt(new(big.Int).SetUint64(stx.Intent.AmountIn), 0).
		Div(decimal.NewFromBigInt(new(big.Int).SetUint64(qty), 0))
	return Fill{Qty: qty, Price: price.InexactFloat64()}, nil
}

func tokenDelta(receipt *Receipt, owner, mint string) uint64 {
	sum := func(balances []TokenBalance) uint64 {
		var total uint64
		for _, b := range balances {
			if b.Owner == owner && b.Mint == mint {
				total += b.Amount
			}
		}
		return total
	}
	pre, post := sum(receipt.PreTokenBalances), sum(receipt.PostTokenBalances)
	if post <= pre {
		return 0
	}
	return post - pre
}
