package execution

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"solexec-go/internal/endpoint"
	"solexec-go/internal/wallet"
)

// SubmitConfig bounds the submit stage.
type SubmitConfig struct {
	// MaxAttempts is the number of sends for transport errors, first try included.
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// ConfirmTimeout caps the whole send-and-confirm wait.
	ConfirmTimeout time.Duration
	Commitment     rpc.CommitmentType
}

// DefaultSubmitConfig allows three attempts at "confirmed" commitment with
// preflight on.
func DefaultSubmitConfig() SubmitConfig {
	return SubmitConfig{
		MaxAttempts:    3,
		RetryDelay:     250 * time.Millisecond,
		MaxRetryDelay:  2 * time.Second,
		ConfirmTimeout: 60 * time.Second,
		Commitment:     rpc.CommitmentConfirmed,
	}
}

func (c SubmitConfig) normalized() SubmitConfig {
	def := DefaultSubmitConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = c.RetryDelay
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	return c
}

// Executor runs the pipeline stages. It holds no per-call state; every stage
// may run concurrently for different wallets.
type Executor struct {
	wallets   *wallet.Pool
	endpoints *endpoint.Pool[Transport]
	quoter    Quoter
	fallback  FlatRatio
	adapter   ProgramAdapter
	recorder  Recorder
	submit    SubmitConfig
	log       zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithQuoter plugs in a real quote source for Simulate.
func WithQuoter(q Quoter) Option {
	return func(x *Executor) { x.quoter = q }
}

// WithFallback overrides the flat-ratio policy used when no quoter is set.
func WithFallback(r FlatRatio) Option {
	return func(x *Executor) { x.fallback = r }
}

// WithAdapter sets the program adapter used by PreSign and Submit.
func WithAdapter(a ProgramAdapter) Option {
	return func(x *Executor) {
		if a != nil {
			x.adapter = a
		}
	}
}

// WithRecorder receives every SubmitResult.
func WithRecorder(r Recorder) Option {
	return func(x *Executor) { x.recorder = r }
}

// WithSubmitConfig overrides retry and timeout settings.
func WithSubmitConfig(c SubmitConfig) Option {
	return func(x *Executor) { x.submit = c.normalized() }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(x *Executor) { x.log = log }
}

// NewExecutor wires the pipeline to its pools.
func NewExecutor(wallets *wallet.Pool, endpoints *endpoint.Pool[Transport], opts ...Option) *Executor {
	x := &Executor{
		wallets:   wallets,
		endpoints: endpoints,
		fallback:  DefaultFallback,
		adapter:   NoopAdapter{},
		submit:    DefaultSubmitConfig(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Wallets exposes the wallet pool for status and busy-flag handling.
func (x *Executor) Wallets() *wallet.Pool { return x.wallets }

// Endpoints exposes the endpoint pool for caller-level failover.
func (x *Executor) Endpoints() *endpoint.Pool[Transport] { return x.endpoints }
