// Binary solexec serves the execution pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"solexec-go/internal/api"
	"solexec-go/internal/config"
	dex "solexec-go/internal/dex/solana"
	"solexec-go/internal/execution"
	"solexec-go/internal/journal"
	"solexec-go/internal/metrics"
	"solexec-go/internal/risk"
	"solexec-go/internal/util"
	"solexec-go/internal/wallet"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfg, err := loadConfig(getEnv("SOLEXEC_CONFIG", "configs/solexec.yaml"))
	log := util.NewLogger(cfg.App.LogLevel)
	if err != nil {
		log.Warn().Err(err).Msg("config file not loaded, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log = log.With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	var metricsSrv *http.Server
	if cfg.App.MetricsAddr != "" {
		metricsSrv = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	wallets := wallet.NewPool()
	loadWallets(cfg, wallets, util.Component(log, "wallet"))

	endpoints := dex.NewEndpointPool(dex.PoolConfig{
		RPCURLs:      cfg.Dex.RPCEndpoints,
		WSURLs:       cfg.Dex.WSEndpoints,
		Commitment:   cfg.Dex.Commitment,
		PollInterval: cfg.Submit.PollInterval(),
		Log:          util.Component(log, "confirm"),
	})
	log.Info().Strs("endpoints", endpoints.Names()).Msg("endpoint pool ready")

	ledger := journal.NewLedger(256)
	if cfg.Journal.Path != "" {
		n, err := ledger.Load(cfg.Journal.Path)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Journal.Path).Msg("journal replay failed")
		}
		rec, err := journal.NewJSONLRecorder(cfg.Journal.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("open journal")
		}
		defer rec.Close()
		ledger.WriteThrough(rec)
		log.Info().Int("replayed", n).Str("path", cfg.Journal.Path).Msg("journal open")
	}

	exec := execution.NewExecutor(wallets, endpoints, executorOptions(cfg, ledger, util.Component(log, "executor"))...)

	srv := &http.Server{
		Addr: cfg.App.APIAddr,
		Handler: api.New(exec,
			api.WithLimits(risk.Limits{MaxAmountIn: cfg.Risk.MaxAmountIn, MaxSlippageBps: cfg.Risk.MaxSlippageBps}),
			api.WithLedger(ledger),
			api.WithLogger(util.Component(log, "api")),
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go refresher(ctx, exec, ledger, cfg.Wallet.RefreshInterval(), util.Component(log, "refresher"))

	go func() {
		log.Info().Str("addr", cfg.App.APIAddr).Msg("api up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	return cfg, err
}

func loadWallets(cfg *config.Config, pool *wallet.Pool, log zerolog.Logger) {
	if cfg.Wallet.RegistryPath != "" {
		records, err := wallet.LoadRegistry(cfg.Wallet.RegistryPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Wallet.RegistryPath).Msg("registry entries skipped")
		}
		n, err := pool.RegisterAll(records)
		if err != nil {
			log.Error().Err(err).Msg("wallets rejected")
		}
		log.Info().Int("registered", n).Str("path", cfg.Wallet.RegistryPath).Msg("wallet registry loaded")
	}
	if cfg.Wallet.PrivateKeyBase58 != "" {
		cred, err := wallet.ParseCredential(cfg.Wallet.PrivateKeyBase58)
		if err == nil {
			err = pool.Register(cfg.Wallet.EnvWalletID, "", cred)
		}
		if err != nil {
			log.Error().Err(err).Str("wallet", cfg.Wallet.EnvWalletID).Msg("env wallet rejected")
		} else {
			log.Info().Str("wallet", cfg.Wallet.EnvWalletID).Msg("env wallet registered")
		}
	}
	if len(pool.IDs()) == 0 {
		log.Warn().Msg("no wallets registered")
	}
}

func executorOptions(cfg *config.Config, rec execution.Recorder, log zerolog.Logger) []execution.Option {
	opts := []execution.Option{
		execution.WithLogger(log),
		execution.WithRecorder(rec),
		execution.WithFallback(execution.FlatRatio{
			Numerator:   cfg.Simulate.FallbackNumerator,
			Denominator: cfg.Simulate.FallbackDenominator,
		}),
		execution.WithSubmitConfig(execution.SubmitConfig{
			MaxAttempts:    cfg.Submit.MaxAttempts,
			RetryDelay:     cfg.Submit.RetryDelay(),
			MaxRetryDelay:  cfg.Submit.MaxRetryDelay(),
			ConfirmTimeout: cfg.Submit.ConfirmTimeout(),
			Commitment:     dex.ParseCommitment(cfg.Dex.Commitment),
		}),
	}
	jup := dex.NewJupiterClient(cfg.Dex.JupiterBase, cfg.Dex.QuoteTimeout())
	if cfg.Simulate.UseJupiter {
		opts = append(opts, execution.WithQuoter(jup))
	}
	if cfg.Dex.Adapter == "jupiter" {
		opts = append(opts, execution.WithAdapter(dex.JupiterAdapter{Client: jup}))
	}
	return opts
}

// refresher keeps cached balances warm and settles journal entries whose
// outcome was unknown.
func refresher(ctx context.Context, exec *execution.Executor, ledger *journal.Ledger, every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tickCtx, cancel := context.WithTimeout(ctx, every)
		if err := exec.RefreshAll(tickCtx); err != nil {
			log.Warn().Err(err).Msg("balance refresh incomplete")
		}
		n, err := ledger.ReconcileUnresolved(tickCtx, exec.Reconcile)
		if err != nil {
			log.Warn().Err(err).Msg("reconcile incomplete")
		}
		if n > 0 {
			log.Info().Int("resolved", n).Msg("journal entries reconciled")
		}
		cancel()
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
