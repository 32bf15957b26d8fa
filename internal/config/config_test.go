package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "solexec-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.APIAddr != ":18080" {
		t.Fatalf("unexpected App.APIAddr: %s", cfg.App.APIAddr)
	}
	if len(cfg.Dex.RPCEndpoints) != 2 || cfg.Dex.RPCEndpoints[1] != "https://rpc-b.example" {
		t.Fatalf("unexpected rpc endpoints: %+v", cfg.Dex.RPCEndpoints)
	}
	if cfg.Dex.Commitment != "processed" {
		t.Fatalf("expected processed commitment, got %s", cfg.Dex.Commitment)
	}
	if cfg.Dex.QuoteTimeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected quote timeout: %s", cfg.Dex.QuoteTimeout())
	}
	if cfg.Dex.Adapter != "jupiter" {
		t.Fatalf("unexpected adapter: %s", cfg.Dex.Adapter)
	}
	if cfg.Submit.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.Submit.MaxAttempts)
	}
	if cfg.Submit.MaxRetryDelay() != 800*time.Millisecond {
		t.Fatalf("unexpected max retry delay: %s", cfg.Submit.MaxRetryDelay())
	}
	if cfg.Submit.PollIntervalMs != 500 {
		t.Fatalf("expected default poll interval 500, got %d", cfg.Submit.PollIntervalMs)
	}
	if cfg.Simulate.FallbackNumerator != 97 || cfg.Simulate.FallbackDenominator != 100 {
		t.Fatalf("unexpected fallback ratio %+v", cfg.Simulate)
	}
	if cfg.Wallet.EnvWalletID != "hot" {
		t.Fatalf("unexpected env wallet id: %s", cfg.Wallet.EnvWalletID)
	}
	if cfg.Wallet.RefreshInterval() != 30*time.Second {
		t.Fatalf("expected default refresh interval, got %s", cfg.Wallet.RefreshInterval())
	}
	if cfg.Risk.MaxAmountIn != 5_000_000_000 || cfg.Risk.MaxSlippageBps != 300 {
		t.Fatalf("unexpected risk limits %+v", cfg.Risk)
	}
	if cfg.Journal.Path != "data/submissions.jsonl" {
		t.Fatalf("unexpected journal path: %s", cfg.Journal.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Dex.RPCEndpoints = []string{"https://rpc.example"}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Submit.ConfirmTimeout() != time.Minute || loaded.Dex.RPCEndpoints[0] != "https://rpc.example" {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Dex.Commitment = "eventually"
	cfg.Simulate.FallbackNumerator = 120
	cfg.Risk.MaxSlippageBps = 20_000
	cfg.Dex.WSEndpoints = []string{"wss://orphan"}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"rpc_endpoints", "ws_endpoints", "commitment", "fallback ratio", "max_slippage_bps"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RPC_ENDPOINTS", "https://a.example, ,https://b.example")
	t.Setenv("WS_ENDPOINTS", " ,wss://b.example")
	t.Setenv("SOLANA_COMMITMENT", "FINALIZED")
	t.Setenv("WALLET_REGISTRY", "/etc/solexec/wallets.json")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := Default()
	cfg.ApplyEnv()
	if len(cfg.Dex.RPCEndpoints) != 2 || cfg.Dex.RPCEndpoints[1] != "https://b.example" {
		t.Fatalf("unexpected endpoints %+v", cfg.Dex.RPCEndpoints)
	}
	if len(cfg.Dex.WSEndpoints) != 2 || cfg.Dex.WSEndpoints[0] != "" || cfg.Dex.WSEndpoints[1] != "wss://b.example" {
		t.Fatalf("unexpected ws endpoints %+v", cfg.Dex.WSEndpoints)
	}
	if cfg.Dex.Commitment != "finalized" {
		t.Fatalf("unexpected commitment %s", cfg.Dex.Commitment)
	}
	if cfg.Wallet.RegistryPath != "/etc/solexec/wallets.json" || cfg.App.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
