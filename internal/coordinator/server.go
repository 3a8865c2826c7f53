package coordinator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"proofofflip/internal/attestation"
	"proofofflip/internal/birthcert"
	"proofofflip/internal/protocol"
	"proofofflip/internal/wallet"
)

// rateWindow and the request-rate gate below are grounded on
// control_api.go's withAuth/allowRequest pair: a coarse per-host counter
// reset every rateLimitWindow, applied here to the whole public API surface
// rather than a token-gated control plane.
type rateWindow struct {
	start time.Time
	count int
}

const (
	rateLimitCount  = 240
	rateLimitWindow = time.Minute
)

type rateLimiter struct {
	mu   sync.Mutex
	rate map[string]rateWindow
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{rate: make(map[string]rateWindow)}
}

func (rl *rateLimiter) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil || host == "" {
		host = strings.TrimSpace(r.RemoteAddr)
		if host == "" {
			host = "unknown"
		}
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.rate[host]
	if w.start.IsZero() || now.Sub(w.start) >= rateLimitWindow {
		w = rateWindow{start: now, count: 0}
	}
	if w.count >= rateLimitCount {
		rl.rate[host] = w
		return false
	}
	w.count++
	rl.rate[host] = w
	return true
}

func (c *Coordinator) startServer() error {
	limiter := newRateLimiter()
	withRateLimit := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(r) {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", withRateLimit(c.handleRegister))
	mux.HandleFunc("/api/agents", withRateLimit(c.handleAgents))
	mux.HandleFunc("/api/leaderboard", withRateLimit(c.handleLeaderboard))
	mux.HandleFunc("/api/games", withRateLimit(c.handleGames))
	mux.HandleFunc("/api/stats", withRateLimit(c.handleStats))
	mux.HandleFunc("/api/attestation", withRateLimit(c.handleOwnAttestation))
	mux.HandleFunc("/api/birth-cert", withRateLimit(c.handleOwnBirthCert))
	mux.HandleFunc("/api/topup-sol", withRateLimit(c.handleTopupSol))
	mux.HandleFunc("/api/agent-message", withRateLimit(c.handleAgentMessage))
	mux.HandleFunc("/api/donation-confirmed", withRateLimit(c.handleDonationConfirmed))
	mux.HandleFunc("/api/events", c.bus.ServeHTTP)

	c.httpServer = &http.Server{Addr: c.cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("coordinator: listening on %s: %w", c.cfg.ListenAddr, err)
	}
	go func() {
		if err := c.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Coordinator] HTTP server exited: %v\n", err)
		}
	}()
	fmt.Printf("[Coordinator] HTTP server listening on %s\n", c.cfg.ListenAddr)
	return nil
}

// handleRegister implements the registration pipeline of spec §4.5,
// short-circuiting on failure with a 4xx response carrying the reason.
func (c *Coordinator) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed registration body: "+err.Error())
		return
	}
	certRaw, err := json.Marshal(req.BirthCert)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed birth certificate")
		return
	}
	var cert birthcert.BirthCertificate
	if err := json.Unmarshal(certRaw, &cert); err != nil {
		writeError(w, http.StatusBadRequest, "malformed birth certificate: "+err.Error())
		return
	}

	// Step 1: resolve effective callback URL; the signature is verified
	// against the original endpoint string the agent signed.
	originalEndpoint := req.Endpoint
	effectiveEndpoint := req.Endpoint
	if AgentEndpointIsLoopback(req.Endpoint) {
		effectiveEndpoint = "http://" + requestSourceIP(r)
	}

	// Step 2: attestation verification.
	result := attestation.Verify(r.Context(), cert, c.parser, c.allowlist)
	if !result.OK {
		writeError(w, http.StatusBadRequest, result.Reason)
		return
	}

	// Step 3: wallet signature over the canonical message.
	if err := attestation.VerifyWalletSignature(cert); err != nil {
		writeError(w, http.StatusBadRequest, "wallet signature verification failed: "+err.Error())
		return
	}

	// Step 4: signature over "register:{walletAddress}:{endpoint}".
	message := fmt.Sprintf("register:%s:%s", cert.WalletAddress, originalEndpoint)
	sigBytes, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed registration signature")
		return
	}
	if err := wallet.Verify(cert.WalletAddress, []byte(message), sigBytes); err != nil {
		writeError(w, http.StatusBadRequest, "registration signature verification failed")
		return
	}

	// Step 5: reject duplicates.
	if c.registry.Has(cert.WalletAddress) {
		writeError(w, http.StatusBadRequest, "wallet already registered")
		return
	}

	// Step 6: initial funding.
	balance, _ := c.FundInitialOrMock(r.Context(), cert.WalletAddress)

	// Step 7: admit and broadcast.
	agent := &Agent{
		AgentName:     cert.AgentName,
		WalletAddress: cert.WalletAddress,
		Endpoint:      effectiveEndpoint,
		BirthCert:     cert,
		RegisteredAt:  time.Now(),
		Balance:       balance,
	}
	c.registry.Admit(agent)
	c.bus.Publish(protocol.EventAgentJoined, agent, time.Now())

	writeJSON(w, http.StatusOK, protocol.RegisterResponse{Success: true, Message: "registered"})
}

func (c *Coordinator) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.registry.Snapshot())
}

func (c *Coordinator) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.registry.Leaderboard())
}

func (c *Coordinator) handleGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.registry.GameLog())
}

func (c *Coordinator) handleStats(w http.ResponseWriter, r *http.Request) {
	agents := c.registry.Snapshot()
	var active, benched, broke, offline int
	for _, a := range agents {
		switch a.Status {
		case protocol.StatusActive:
			active++
		case protocol.StatusBenched:
			benched++
		case protocol.StatusBroke:
			broke++
		case protocol.StatusOffline, protocol.StatusDeleted:
			offline++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalAgents": len(agents),
		"active":      active,
		"benched":     benched,
		"broke":       broke,
		"offline":     offline,
		"totalGames":  len(c.registry.GameLog()),
		"uptime":      c.Uptime(),
	})
}

func (c *Coordinator) handleOwnAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rtmr3, err := c.provider.GetCodeMeasurement(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	quote, err := c.provider.GetAttestationQuote(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	teePub, err := c.provider.GetTeePublicKey(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, protocol.AttestationResponse{
		RTMR3: rtmr3, CodeHash: c.cert.CodeHash, Timestamp: c.cert.Timestamp,
		Provider: c.cfg.TeeProvider, Quote: quote, TeePubkey: teePub,
	})
}

func (c *Coordinator) handleOwnBirthCert(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.cert)
}

// handleTopupSol implements spec §4.4 "Gas top-up": check on-chain balance,
// send a gas-only funding transfer if needed. Throttling against a single
// wallet is left to the Coordinator's rate limiter above (spec §4.4:
// "throttled by the Coordinator").
func (c *Coordinator) handleTopupSol(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req protocol.TopupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed topup request: "+err.Error())
		return
	}
	if !c.registry.Has(req.WalletAddress) {
		writeError(w, http.StatusBadRequest, "unknown wallet")
		return
	}
	balance, err := c.chain.GetSolBalance(r.Context(), req.WalletAddress)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if balance >= GasTopupAmount {
		writeJSON(w, http.StatusOK, map[string]string{"status": "sufficient"})
		return
	}
	sig, err := c.chain.TransferSol(r.Context(), c.wallet.PrivateKey, req.WalletAddress, GasTopupAmount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded", "txSignature": sig})
}

// handleAgentMessage and handleDonationConfirmed are authenticated by
// agent-name presence in the pool (spec §4.5 "Other Coordinator
// endpoints") and forwarded to the event bus / donation bookkeeping.
func (c *Coordinator) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("X-Agent-Name")
	if _, ok := c.registry.ByAgentName(name); !ok {
		writeError(w, http.StatusForbidden, "unknown agent")
		return
	}
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed message: "+err.Error())
		return
	}
	c.bus.Publish(protocol.EventType("agent_message"), payload, time.Now())
	writeJSON(w, http.StatusOK, map[string]string{"status": "forwarded"})
}

type donationNoticeRequest struct {
	AgentName string `json:"agentName"`
	Donor     string `json:"donor"`
	Amount    int64  `json:"amount"`
}

func (c *Coordinator) handleDonationConfirmed(w http.ResponseWriter, r *http.Request) {
	var req donationNoticeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed donation notice: "+err.Error())
		return
	}
	agent, ok := c.registry.ByAgentName(req.AgentName)
	if !ok {
		writeError(w, http.StatusForbidden, "unknown agent")
		return
	}
	c.registry.RecordDonation(agent.WalletAddress, req.Amount)
	c.bus.Publish(protocol.EventDonation, req, time.Now())
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func requestSourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AgentEndpointIsLoopback reports whether endpoint is missing or loopback,
// spec §4.5 step 1.
func AgentEndpointIsLoopback(endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	for _, h := range []string{"127.0.0.1", "localhost", "::1", "0.0.0.0"} {
		if strings.Contains(endpoint, h) {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

