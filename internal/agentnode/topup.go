package agentnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"proofofflip/internal/protocol"
)

// RequestGasTopup POSTs to the Coordinator's /api/topup-sol when native
// balance runs low, per spec §4.4 "Gas top-up". The Coordinator throttles
// this itself; the agent side is a plain best-effort call.
func (a *AgentNode) RequestGasTopup(ctx context.Context) error {
	w := a.Wallet()
	reqBody := protocol.TopupRequest{AgentName: a.cfg.AgentName, WalletAddress: w.Address}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encoding topup request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.CoordinatorURL+"/api/topup-sol", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building topup request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling Coordinator topup endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Coordinator rejected topup (%s): %s", resp.Status, string(body))
	}
	fmt.Printf("[Funding] %s: gas top-up requested\n", a.cfg.AgentName)
	return nil
}
