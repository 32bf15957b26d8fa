// Binary swap runs one intent through simulate, pre-sign and (with -send)
// submit. Without -send nothing leaves the machine except the quote and the
// blockhash fetch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"solexec-go/internal/config"
	dex "solexec-go/internal/dex/solana"
	"solexec-go/internal/execution"
	"solexec-go/internal/util"
	"solexec-go/internal/wallet"
)

const (
	SOL  = "So11111111111111111111111111111111111111112"
	USDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func main() {
	var (
		cfgPath  = flag.String("config", getEnv("SOLEXEC_CONFIG", "configs/solexec.yaml"), "config file")
		in       = flag.String("in", SOL, "input mint")
		out      = flag.String("out", USDC, "output mint")
		amount   = flag.Uint64("amount", 10_000_000, "amount in, smallest units (default 0.01 SOL)")
		slippage = flag.Uint("slippage", 150, "slippage tolerance in bps")
		route    = flag.String("route", "jupiter", "route label")
		send     = flag.Bool("send", false, "submit the signed transaction")
		failover = flag.Bool("failover", false, "rotate endpoints after transport failures")
		timeout  = flag.Duration("timeout", 90*time.Second, "overall deadline")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	log := util.NewConsoleLogger(cfg.App.LogLevel)
	if len(cfg.Dex.RPCEndpoints) == 0 {
		cfg.Dex.RPCEndpoints = []string{getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")}
	}

	rec, err := wallet.FromEnv(cfg.Wallet.EnvWalletID)
	if err != nil {
		log.Fatal().Err(err).Msg("wallet")
	}
	wallets := wallet.NewPool()
	if err := wallets.Register(rec.ID, rec.PublicKey, rec.Credential); err != nil {
		log.Fatal().Err(err).Msg("wallet")
	}

	endpoints := dex.NewEndpointPool(dex.PoolConfig{
		RPCURLs:      cfg.Dex.RPCEndpoints,
		WSURLs:       cfg.Dex.WSEndpoints,
		Commitment:   cfg.Dex.Commitment,
		PollInterval: cfg.Submit.PollInterval(),
		Log:          log,
	})
	jup := dex.NewJupiterClient(cfg.Dex.JupiterBase, cfg.Dex.QuoteTimeout())
	exec := execution.NewExecutor(wallets, endpoints,
		execution.WithLogger(log),
		execution.WithQuoter(jup),
		execution.WithAdapter(dex.JupiterAdapter{Client: jup}),
		execution.WithSubmitConfig(execution.SubmitConfig{
			MaxAttempts:    cfg.Submit.MaxAttempts,
			RetryDelay:     cfg.Submit.RetryDelay(),
			MaxRetryDelay:  cfg.Submit.MaxRetryDelay(),
			ConfirmTimeout: cfg.Submit.ConfirmTimeout(),
			Commitment:     dex.ParseCommitment(cfg.Dex.Commitment),
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	intent := execution.SwapIntent{
		Route:       *route,
		InputMint:   *in,
		OutputMint:  *out,
		AmountIn:    *amount,
		SlippageBps: uint16(*slippage),
		WalletID:    rec.ID,
	}

	sim := exec.Simulate(ctx, intent)
	printJSON(sim)
	if !sim.OK {
		os.Exit(1)
	}

	stx, err := exec.PreSign(ctx, rec.ID, intent)
	if err != nil {
		log.Fatal().Err(err).Msg("pre-sign")
	}
	log.Info().Str("sig", stx.Signature().String()).Uint64("last_valid_block_height", stx.LastValidBlockHeight).Msg("signed")
	if !*send {
		log.Info().Msg("dry run, pass -send to submit")
		return
	}

	var res execution.SubmitResult
	if *failover {
		res = exec.SubmitWithFailover(ctx, stx, 0)
	} else {
		res = exec.Submit(ctx, stx)
	}
	printJSON(res)
	if !res.Confirmed {
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
