// Package agentnode implements the C4 Agent Runtime of spec §4.4: boots,
// persists identity, exposes the HTTP contract, executes winner/loser
// roles, and pays via x402.
package agentnode

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"proofofflip/internal/birthcert"
	"proofofflip/internal/chain"
	"proofofflip/internal/protocol"
	"proofofflip/internal/teeprovider"
	"proofofflip/internal/wallet"
)

// State is a stage in the agent boot state machine: unborn → booting →
// registering → (running | aborted).
type State string

const (
	StateUnborn      State = "unborn"
	StateBooting     State = "booting"
	StateRegistering State = "registering"
	StateRunning     State = "running"
	StateAborted     State = "aborted"
)

// AgentNode is one running agent process.
type AgentNode struct {
	mu sync.RWMutex

	cfg      *Config
	provider teeprovider.Provider
	chain    chain.Client
	wallet   *wallet.Wallet
	cert     *birthcert.BirthCertificate

	state     State
	startedAt time.Time

	httpClient *http.Client
	httpServer *http.Server

	// collectedSigs suppresses double-counting on retried /collect calls
	// against the same tx signature.
	collectedSigs map[string]bool
	// gameSignatures is the shared set the donation watcher consults to
	// discriminate a match settlement from a genuine donation (spec §4.5
	// "Donation ingestion" / §5 "gameTxSignatures").
	gameSignatures map[string]bool
}

// New constructs an AgentNode bound to cfg, provider and a chain client. It
// does not yet run the boot sequence.
func New(cfg *Config, provider teeprovider.Provider, chainClient chain.Client) *AgentNode {
	return &AgentNode{
		cfg:            cfg,
		provider:       provider,
		chain:          chainClient,
		state:          StateUnborn,
		httpClient:     &http.Client{Timeout: protocol.DispatchTimeout},
		collectedSigs:  make(map[string]bool),
		gameSignatures: make(map[string]bool),
	}
}

func (a *AgentNode) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *AgentNode) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	fmt.Printf("[Agent] %s: state -> %s\n", a.cfg.AgentName, s)
}

func (a *AgentNode) Wallet() *wallet.Wallet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet
}

func (a *AgentNode) BirthCert() *birthcert.BirthCertificate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cert
}

// Boot runs unborn -> booting -> registering -> running, per spec §4.4.
func (a *AgentNode) Boot(ctx context.Context) error {
	a.setState(StateBooting)
	if err := a.bootIdentity(ctx); err != nil {
		a.setState(StateAborted)
		return fmt.Errorf("agentnode: boot identity: %w", err)
	}

	a.startedAt = time.Now()
	if err := a.startServer(); err != nil {
		a.setState(StateAborted)
		return fmt.Errorf("agentnode: starting HTTP server: %w", err)
	}

	a.setState(StateRegistering)
	if err := a.registerWithRetry(ctx); err != nil {
		a.setState(StateAborted)
		return fmt.Errorf("agentnode: registration: %w", err)
	}

	a.setState(StateRunning)
	go a.runDonationWatcher(ctx)
	return nil
}

// bootIdentity implements the unborn -> booting transition of spec §4.4:
// load-or-generate the wallet and birth certificate, persisting on first
// boot and warning (not failing) on RTMR3 drift on restart.
func (a *AgentNode) bootIdentity(ctx context.Context) error {
	state, err := birthcert.Load(a.cfg.StoragePath)
	if err == nil {
		w, err := wallet.FromSecretKey(state.SecretKey)
		if err != nil {
			return fmt.Errorf("rebuilding wallet from persisted secret key: %w", err)
		}
		a.mu.Lock()
		a.wallet = w
		cert := state.BirthCert
		a.cert = &cert
		a.mu.Unlock()

		currentRTMR3, measureErr := a.provider.GetCodeMeasurement(ctx)
		if measureErr == nil && birthcert.DriftedRTMR3(state.BirthCert, currentRTMR3) {
			fmt.Printf("[Agent] %s: warning: RTMR3 drift detected (stored %s, current %s); continuing with persisted certificate\n",
				a.cfg.AgentName, state.BirthCert.RTMR3, currentRTMR3)
		}
		fmt.Printf("[Agent] %s: loaded persisted identity from %s\n", a.cfg.AgentName, a.cfg.StoragePath)
		return nil
	}

	w, err := wallet.Generate()
	if err != nil {
		return fmt.Errorf("generating wallet: %w", err)
	}
	cert, err := birthcert.Build(ctx, a.cfg.AgentName, w, a.provider, a.cfg.DockerImage)
	if err != nil {
		return fmt.Errorf("building birth certificate: %w", err)
	}

	a.mu.Lock()
	a.wallet = w
	a.cert = cert
	a.mu.Unlock()

	persisted := &birthcert.PersistedState{SecretKey: w.PrivateKey, BirthCert: *cert}
	if err := birthcert.Save(a.cfg.StoragePath, persisted); err != nil {
		// Non-fatal: this session still has a valid in-memory identity.
		fmt.Printf("[Agent] %s: warning: could not persist identity to %s: %v\n", a.cfg.AgentName, a.cfg.StoragePath, err)
	} else {
		fmt.Printf("[Agent] %s: generated new identity, saved to %s\n", a.cfg.AgentName, a.cfg.StoragePath)
	}
	return nil
}

// Uptime returns the elapsed time in seconds since Boot, having loaded the
// identity, began starting the HTTP server (before registration).
func (a *AgentNode) Uptime() int64 {
	if a.startedAt.IsZero() {
		return 0
	}
	return int64(time.Since(a.startedAt).Seconds())
}

// MarkGameSignature records sig as a settlement payment so the donation
// watcher can distinguish it from a third-party donation.
func (a *AgentNode) MarkGameSignature(sig string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gameSignatures[sig] = true
}

func (a *AgentNode) isGameSignature(sig string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gameSignatures[sig]
}

// Shutdown stops the HTTP server gracefully.
func (a *AgentNode) Shutdown(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}
