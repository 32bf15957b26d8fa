package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"solexec-go/internal/execerr"
	"solexec-go/internal/execution"
)

// DefaultJupiterBase is the public aggregator API.
const DefaultJupiterBase = "https://quote-api.jup.ag"

// JupiterClient talks to the Jupiter v6 HTTP API. It quotes intents and
// returns swap instructions; signing and sending stay with the executor.
type JupiterClient struct {
	Base string
	Http *http.Client
	// Legacy asks for routes that fit a legacy transaction (no lookup tables).
	Legacy bool
}

type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OtherAmount    string `json:"otherAmountThreshold"`
	SwapMode       string `json:"swapMode,omitempty"`
	SlippageBps    int    `json:"slippageBps"`
	RoutePlan      any    `json:"routePlan"`
	PriceImpactPct string `json:"priceImpactPct"`

	raw json.RawMessage
}

// MarshalJSON echoes the quote exactly as Jupiter sent it, so the swap
// endpoint sees fields this struct does not model.
func (q Quote) MarshalJSON() ([]byte, error) {
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	type plain Quote
	return json.Marshal(plain(q))
}

func NewJupiterClient(base string, timeout time.Duration) *JupiterClient {
	if base == "" {
		base = DefaultJupiterBase
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &JupiterClient{
		Base:   base,
		Http:   &http.Client{Timeout: timeout},
		Legacy: true,
	}
}

// amount is in smallest units (lamports for SOL; token decimals apply).
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	q.Set("onlyDirectRoutes", "false")
	if j.Legacy {
		q.Set("asLegacyTransaction", "true")
	}
	u := j.Base + "/v6/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, execerr.Wrap(execerr.ErrEndpointUnavailable, err).With("endpoint", "jupiter")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote status %d", resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out Quote
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out.raw = raw
	return &out, nil
}

// Quote implements execution.Quoter. Price impact is reported as a fraction.
func (j *JupiterClient) Quote(ctx context.Context, intent execution.SwapIntent) (uint64, float64, error) {
	q, err := j.GetQuote(ctx, intent.InputMint, intent.OutputMint, intent.AmountIn, int(intent.SlippageBps))
	if err != nil {
		return 0, 0, err
	}
	out, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("jupiter outAmount %q: %w", q.OutAmount, err)
	}
	var impact float64
	if q.PriceImpactPct != "" {
		d, err := decimal.NewFromString(q.PriceImpactPct)
		if err != nil {
			return 0, 0, fmt.Errorf("jupiter priceImpactPct %q: %w", q.PriceImpactPct, err)
		}
		impact = d.Abs().InexactFloat64()
	}
	return out, impact, nil
}

type jupiterAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type jupiterInstruction struct {
	ProgramID string           `json:"programId"`
	Accounts  []jupiterAccount `json:"accounts"`
	Data      string           `json:"data"`
}

type swapInstructions struct {
	ComputeBudget []jupiterInstruction `json:"computeBudgetInstructions"`
	Setup         []jupiterInstruction `json:"setupInstructions"`
	Swap          *jupiterInstruction  `json:"swapInstruction"`
	Cleanup       *jupiterInstruction  `json:"cleanupInstruction"`
	LookupTables  []string             `json:"addressLookupTableAddresses"`
}

var errLookupTables = errors.New("jupiter route needs address lookup tables")

// SwapInstructions asks Jupiter for the instructions of a quoted swap.
func (j *JupiterClient) SwapInstructions(ctx context.Context, owner solana.PublicKey, quote *Quote) ([]solana.Instruction, error) {
	payload := map[string]any{
		"userPublicKey":       owner.String(),
		"wrapAndUnwrapSol":    true,
		"asLegacyTransaction": j.Legacy,
		"useTokenLedger":      false,
		"quoteResponse":       quote,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Base+"/v6/swap-instructions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, execerr.Wrap(execerr.ErrEndpointUnavailable, err).With("endpoint", "jupiter")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter swap-instructions status %d", resp.StatusCode)
	}
	var sr swapInstructions
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	if len(sr.LookupTables) > 0 {
		return nil, errLookupTables
	}
	if sr.Swap == nil {
		return nil, errors.New("jupiter response has no swap instruction")
	}

	all := append([]jupiterInstruction{}, sr.ComputeBudget...)
	all = append(all, sr.Setup...)
	all = append(all, *sr.Swap)
	if sr.Cleanup != nil {
		all = append(all, *sr.Cleanup)
	}
	out := make([]solana.Instruction, 0, len(all))
	for _, ji := range all {
		ix, err := ji.toInstruction()
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

func (ji jupiterInstruction) toInstruction() (solana.Instruction, error) {
	program, err := solana.PublicKeyFromBase58(ji.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(ji.Data)
	if err != nil {
		return nil, fmt.Errorf("decode instruction data: %w", err)
	}
	metas := make(solana.AccountMetaSlice, 0, len(ji.Accounts))
	for _, a := range ji.Accounts {
		key, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", a.Pubkey, err)
		}
		metas = append(metas, solana.NewAccountMeta(key, a.IsWritable, a.IsSigner))
	}
	return solana.NewInstruction(program, metas, data), nil
}

// JupiterAdapter routes intents through Jupiter. Fills are read from the
// owner's output balance change.
type JupiterAdapter struct {
	Client *JupiterClient
}

// Instructions implements execution.ProgramAdapter.
func (a JupiterAdapter) Instructions(ctx context.Context, owner solana.PublicKey, intent execution.SwapIntent) ([]solana.Instruction, error) {
	q, err := a.Client.GetQuote(ctx, intent.InputMint, intent.OutputMint, intent.AmountIn, int(intent.SlippageBps))
	if err != nil {
		return nil, err
	}
	return a.Client.SwapInstructions(ctx, owner, q)
}

// Fill implements execution.ProgramAdapter.
func (JupiterAdapter) Fill(stx *execution.SignedTransaction, receipt *execution.Receipt) (execution.Fill, error) {
	return execution.BalanceDeltaFill(stx, receipt)
}
