package agentnode

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"proofofflip/internal/protocol"
	"proofofflip/internal/x402"
)

// startServer wires the HTTP contract of spec §4.4 and begins listening.
func (a *AgentNode) startServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/birth-cert", a.handleBirthCert)
	mux.HandleFunc("/attestation", a.handleAttestation)
	mux.HandleFunc("/collect", a.handleCollect)
	mux.HandleFunc("/play", a.handlePlay)

	a.httpServer = &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.ListenAddr, err)
	}
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Agent] %s: HTTP server exited: %v\n", a.cfg.AgentName, err)
		}
	}()
	fmt.Printf("[Agent] %s: HTTP server listening on %s\n", a.cfg.AgentName, a.cfg.ListenAddr)
	return nil
}

func (a *AgentNode) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HealthResponse{
		AgentName:     a.cfg.AgentName,
		Status:        "ok",
		UptimeSeconds: a.Uptime(),
		WalletAddress: a.Wallet().Address,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *AgentNode) handleBirthCert(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.BirthCert())
}

func (a *AgentNode) handleAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rtmr3, err := a.provider.GetCodeMeasurement(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	quote, err := a.provider.GetAttestationQuote(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	teePub, err := a.provider.GetTeePublicKey(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cert := a.BirthCert()
	resp := protocol.AttestationResponse{
		RTMR3:     rtmr3,
		CodeHash:  cert.CodeHash,
		Timestamp: cert.Timestamp,
		Provider:  string(a.providerKind()),
		Quote:     quote,
		TeePubkey: teePub,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCollect is the x402 payment endpoint of spec §4.4/§6: without a
// X-Payment header it returns 402 with payment requirements; with one, it
// validates and records the proof, discarding duplicates.
func (a *AgentNode) handleCollect(w http.ResponseWriter, r *http.Request) {
	paymentHeader := r.Header.Get(x402.PaymentHeader)
	if paymentHeader == "" {
		req := x402.PaymentRequired{
			Type:        x402.SchemeType,
			Version:     x402.SchemeVersion,
			Address:     a.Wallet().Address,
			Token:       protocol.USDCMint,
			Amount:      protocol.GameStakeBaseUnits,
			Network:     "solana-mainnet",
			Description: "ProofOfFlip match stake",
		}
		writeJSON(w, http.StatusPaymentRequired, req)
		return
	}

	proof, err := x402.ParsePaymentHeader(paymentHeader)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.mu.Lock()
	alreadySeen := a.collectedSigs[proof.TxSignature]
	if !alreadySeen {
		a.collectedSigs[proof.TxSignature] = true
	}
	a.mu.Unlock()
	a.MarkGameSignature(proof.TxSignature)

	resp := protocol.CollectResponse{
		Status:      "collected",
		Agent:       a.cfg.AgentName,
		TxSignature: proof.TxSignature,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlay is the Coordinator-authenticated match dispatch of spec §4.4.
func (a *AgentNode) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var cmd protocol.GameCommand
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "malformed game command: "+err.Error())
		return
	}

	switch cmd.Role {
	case protocol.RoleWinner:
		writeJSON(w, http.StatusOK, protocol.PlayAckResponse{Status: "acknowledged"})
	case protocol.RoleLoser:
		sig, err := a.payWinner(r.Context(), cmd)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, protocol.PlayPaidResponse{Status: "payment_failed", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, protocol.PlayPaidResponse{Status: "paid", GameID: cmd.GameID, TxSignature: sig})
	default:
		writeError(w, http.StatusBadRequest, "unknown role: "+string(cmd.Role))
	}
}

func (a *AgentNode) providerKind() (kind string) {
	if a.cfg.TeeProvider == "" {
		return "mock"
	}
	return a.cfg.TeeProvider
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
