package coordinator

import (
	"context"
	"net/http"
	"time"

	"proofofflip/internal/attestation"
	"proofofflip/internal/chain"
	"proofofflip/internal/teeprovider"
	"proofofflip/internal/vminventory"
	"proofofflip/internal/wallet"
)

// Coordinator is the single orchestration process of spec §2/§4.5/§5: one
// process, multiple goroutines, one authoritative in-memory state.
type Coordinator struct {
	cfg      *Config
	registry *Registry
	bus      *EventBus

	provider  teeprovider.Provider
	chain     chain.Client
	parser    attestation.QuoteParser
	allowlist *attestation.Allowlist
	vmChecker vminventory.Checker

	wallet *wallet.Wallet
	cert   *ownCert
	color  *colorState

	httpClient *http.Client
	httpServer *http.Server

	startedAt time.Time
}

// New assembles a Coordinator from its dependencies. Call Boot to load or
// build its own identity before Run.
func New(cfg *Config, provider teeprovider.Provider, chainClient chain.Client, parser attestation.QuoteParser, allowlist *attestation.Allowlist, vmChecker vminventory.Checker) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		registry:   NewRegistry(),
		bus:        NewEventBus(0),
		provider:   provider,
		chain:      chainClient,
		parser:     parser,
		allowlist:  allowlist,
		vmChecker:  vmChecker,
		color:      newColorState(),
		httpClient: &http.Client{},
	}
}

// Run starts the HTTP server and the periodic match loop, blocking until
// ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.startedAt = time.Now()
	if err := c.startServer(); err != nil {
		return err
	}
	c.runMatchLoop(ctx)
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.httpServer == nil {
		return nil
	}
	return c.httpServer.Shutdown(ctx)
}

func (c *Coordinator) Uptime() int64 {
	if c.startedAt.IsZero() {
		return 0
	}
	return int64(time.Since(c.startedAt).Seconds())
}
