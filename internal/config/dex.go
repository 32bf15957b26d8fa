// Package config also contains DEX-specific configuration surfaces.
package config

import (
	"os"
	"strings"
	"time"
)

// Dex defines network endpoints and defaults for on-chain execution.
type Dex struct {
	RPCEndpoints []string `yaml:"rpc_endpoints"`
	// WSEndpoints pair with RPCEndpoints by index for signature subscriptions.
	WSEndpoints    []string `yaml:"ws_endpoints"`
	Commitment     string   `yaml:"commitment"`   // processed|confirmed|finalized
	JupiterBase    string   `yaml:"jupiter_base"` // https://quote-api.jup.ag
	QuoteTimeoutMs int      `yaml:"quote_timeout_ms"`
	// Adapter selects the program adapter: noop or jupiter.
	Adapter string `yaml:"adapter"`
}

// QuoteTimeout is the HTTP timeout for quote requests.
func (d Dex) QuoteTimeout() time.Duration { return ms(d.QuoteTimeoutMs) }

// Wallet points at signing material. Keys themselves never live in YAML
// unless private_key_base58 is set for local testing.
type Wallet struct {
	RegistryPath      string `yaml:"registry_path"`
	PrivateKeyBase58  string `yaml:"private_key_base58"`
	EnvWalletID       string `yaml:"env_wallet_id"`
	RefreshIntervalMs int    `yaml:"refresh_interval_ms"`
}

// RefreshInterval is how often cached balances are refreshed.
func (w Wallet) RefreshInterval() time.Duration { return ms(w.RefreshIntervalMs) }

// ApplyEnv overrides fields from the process environment. Empty variables
// leave the YAML value in place.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		var urls []string
		for _, u := range splitList(v) {
			if u != "" {
				urls = append(urls, u)
			}
		}
		c.Dex.RPCEndpoints = urls
	}
	if v := os.Getenv("WS_ENDPOINTS"); v != "" {
		c.Dex.WSEndpoints = splitList(v)
	}
	if v := os.Getenv("SOLANA_COMMITMENT"); v != "" {
		c.Dex.Commitment = strings.ToLower(v)
	}
	if v := os.Getenv("JUPITER_BASE_URL"); v != "" {
		c.Dex.JupiterBase = v
	}
	if v := os.Getenv("WALLET_REGISTRY"); v != "" {
		c.Wallet.RegistryPath = v
	}
	if v := os.Getenv("SOLANA_PRIVATE_KEY_BASE58"); v != "" {
		c.Wallet.PrivateKeyBase58 = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
}

// splitList keeps positions, so a blank WS entry still lines up with its RPC
// endpoint.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
