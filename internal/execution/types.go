// Package execution runs the simulate, pre-sign and submit stages for swap
// intents against the wallet and endpoint pools.
package execution

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solexec-go/internal/execerr"
)

const maxSlippageBps = 10_000

// SwapIntent is produced by a strategy and never mutated afterwards.
// AmountIn is in the input mint's smallest unit.
type SwapIntent struct {
	Route       string `json:"route"`
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	AmountIn    uint64 `json:"amountIn"`
	SlippageBps uint16 `json:"slippageBps"`
	WalletID    string `json:"walletId"`
}

// Validate checks the fields every stage depends on.
func (i SwapIntent) Validate() error {
	if i.AmountIn == 0 {
		return execerr.ErrInvalidIntent.With("reason", "amountIn must be positive")
	}
	if i.SlippageBps > maxSlippageBps {
		return execerr.ErrInvalidIntent.With("reason", fmt.Sprintf("slippageBps %d above %d", i.SlippageBps, maxSlippageBps))
	}
	return nil
}

// SimResult is derived from quote data and never persisted.
type SimResult struct {
	OK             bool    `json:"ok"`
	ExpectedOutput uint64  `json:"expectedOutput"`
	MinOutput      uint64  `json:"minOutput"`
	PriceImpact    float64 `json:"priceImpact"`
	Source         string  `json:"source,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// SignedTransaction is fully signed and not yet sent.
type SignedTransaction struct {
	WalletID             string
	Owner                solana.PublicKey
	Intent               SwapIntent
	Tx                   *solana.Transaction
	LastValidBlockHeight uint64
	Endpoint             string
}

// Signature returns the fee payer's signature, which identifies the
// transaction on chain.
func (s *SignedTransaction) Signature() solana.Signature {
	if s == nil || s.Tx == nil || len(s.Tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return s.Tx.Signatures[0]
}

// Base64 encodes the wire form of the transaction.
func (s *SignedTransaction) Base64() (string, error) {
	raw, err := s.Tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal tx: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire transaction, the inverse of Base64.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, nil
}

// Outcome summarizes a submission for callers that do not inspect codes.
type Outcome string

const (
	OutcomeFilled   Outcome = "filled"
	OutcomePartial  Outcome = "partial" // confirmed, fill data missing
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
	OutcomeUnknown  Outcome = "unknown" // must reconcile by signature
)

// SubmitResult is built once per Submit call.
type SubmitResult struct {
	Signature     string       `json:"signature"`
	Confirmed     bool         `json:"confirmed"`
	FillQty       uint64       `json:"fillQty"`
	FillPrice     float64      `json:"fillPrice"`
	FillAvailable bool         `json:"fillAvailable"`
	Outcome       Outcome      `json:"outcome"`
	Code          execerr.Code `json:"code,omitempty"`
	Attempts      int          `json:"attempts"`
	Endpoint      string       `json:"endpoint,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// Fill is the settled quantity of the output mint and the price paid in input
// units per output unit.
type Fill struct {
	Qty   uint64
	Price float64
}

// Anchor is the recent blockhash a transaction is bound to.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SendConfig controls how a transport sends and confirms.
type SendConfig struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
	Commitment          rpc.CommitmentType
}

// TokenBalance is one SPL token balance entry from transaction metadata.
type TokenBalance struct {
	Owner  string
	Mint   string
	Amount uint64
}

// Receipt carries what the chain reported for a confirmed transaction.
// Settled is false when the transaction confirmed but its metadata could not
// be read.
type Receipt struct {
	Signature         solana.Signature
	Slot              uint64
	Fee               uint64
	Settled           bool
	OwnerLamportsPre  uint64
	OwnerLamportsPost uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// SignatureStatus is the result of a signature lookup.
type SignatureStatus struct {
	Found              bool
	Slot               uint64
	ConfirmationStatus rpc.ConfirmationStatusType
	Err                string
}
