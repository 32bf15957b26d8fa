package execution

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solexec-go/internal/execerr"
)

func TestBalanceDeltaFill(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey().String()

	stx := &SignedTransaction{Owner: owner, Intent: SwapIntent{AmountIn: 3_000, OutputMint: testOutputMint}}

	t.Run("token delta ignores other owners", func(t *testing.T) {
		r := &Receipt{
			Settled:           true,
			PreTokenBalances:  []TokenBalance{{Owner: owner.String(), Mint: testOutputMint, Amount: 10}},
			PostTokenBalances: []TokenBalance{{Owner: owner.String(), Mint: testOutputMint, Amount: 1_010}, {Owner: other, Mint: testOutputMint, Amount: 99_999}},
		}
		fill, err := BalanceDeltaFill(stx, r)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000), fill.Qty)
		assert.Equal(t, 3.0, fill.Price)
	})

	t.Run("native output adds fee back", func(t *testing.T) {
		native := &SignedTransaction{Owner: owner, Intent: SwapIntent{AmountIn: 500, OutputMint: solana.SolMint.String()}}
		r := &Receipt{Settled: true, Fee: 5_000, OwnerLamportsPre: 1_000_000, OwnerLamportsPost: 1_995_000}
		fill, err := BalanceDeltaFill(native, r)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000), fill.Qty)
		assert.Equal(t, 0.0005, fill.Price)
	})

	t.Run("unsettled receipt", func(t *testing.T) {
		_, err := BalanceDeltaFill(stx, &Receipt{})
		assert.True(t, errors.Is(err, execerr.ErrFillUnavailable))
		_, err = BalanceDeltaFill(stx, nil)
		assert.True(t, errors.Is(err, execerr.ErrFillUnavailable))
	})

	t.Run("balance did not grow", func(t *testing.T) {
		r := &Receipt{
			Settled:           true,
			PreTokenBalances:  []TokenBalance{{Owner: owner.String(), Mint: testOutputMint, Amount: 50}},
			PostTokenBalances: []TokenBalance{{Owner: owner.String(), Mint: testOutputMint, Amount: 50}},
		}
		_, err := BalanceDeltaFill(stx, r)
		assert.Equal(t, execerr.CodeFillUnavailable, execerr.CodeOf(err))
	})
}

func TestSwapIntentValidate(t *testing.T) {
	ok := testIntent()
	assert.NoError(t, ok.Validate())

	edge := testIntent()
	edge.SlippageBps = 10_000
	assert.NoError(t, edge.Validate())

	bad := testIntent()
	bad.AmountIn = 0
	assert.True(t, errors.Is(bad.Validate(), execerr.ErrInvalidIntent))
}

func TestFlatRatioRejectsBadPolicy(t *testing.T) {
	for _, r := range []FlatRatio{{0, 100}, {1, 0}, {101, 100}} {
		_, _, err := r.Quote(context.Background(), testIntent())
		assert.Error(t, err)
	}
	out, impact, err := FlatRatio{Numerator: 1, Denominator: 1}.Quote(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), out)
	assert.Zero(t, impact)
}

func TestDecodeTransactionRoundTrip(t *testing.T) {
	tr := &stubTransport{anchor: Anchor{Blockhash: solana.Hash{4}}}
	x, _ := newTestExecutor(t, map[string]*stubTransport{"a": tr})
	stx, err := x.PreSign(context.Background(), "w1", testIntent())
	require.NoError(t, err)

	encoded, err := stx.Base64()
	require.NoError(t, err)
	tx, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	assert.Equal(t, stx.Signature(), tx.Signatures[0])
	require.NoError(t, tx.VerifySignatures())

	_, err = DecodeTransaction("!!")
	assert.Error(t, err)
}
