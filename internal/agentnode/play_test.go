package agentnode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"proofofflip/internal/chain"
	"proofofflip/internal/protocol"
	"proofofflip/internal/wallet"
	"proofofflip/internal/x402"
)

func newTestLoserNode(t *testing.T, mockChain *chain.MockClient) (*AgentNode, *wallet.Wallet) {
	t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	mockChain.Fund(w.Address, protocol.USDCMint, 1_000_000, 0)
	node := New(&Config{AgentName: "loser"}, nil, mockChain)
	node.mu.Lock()
	node.wallet = w
	node.mu.Unlock()
	return node, w
}

// TestPayWinnerUsesX402WhenAvailable exercises the happy handshake path:
// GET /collect returns 402 with payment requirements, the loser transfers
// on-chain, then retries GET /collect with the proof header.
func TestPayWinnerUsesX402WhenAvailable(t *testing.T) {
	t.Parallel()
	mockChain := chain.NewMockClient()
	node, _ := newTestLoserNode(t, mockChain)

	winnerWallet, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}

	var ackReceived bool
	winnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(x402.PaymentHeader) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(x402.PaymentRequired{
				Type: x402.SchemeType, Version: x402.SchemeVersion,
				Address: winnerWallet.Address, Token: protocol.USDCMint,
				Amount: protocol.GameStakeBaseUnits, Network: "solana",
			})
			return
		}
		ackReceived = true
		w.WriteHeader(http.StatusOK)
	}))
	defer winnerSrv.Close()

	cmd := protocol.GameCommand{
		OpponentEndpoint: winnerSrv.URL,
		OpponentWallet:   winnerWallet.Address,
		StakeAmount:      protocol.GameStakeBaseUnits,
	}

	sig, err := node.payWinner(context.Background(), cmd)
	if err != nil {
		t.Fatalf("payWinner: %v", err)
	}
	if sig == "" {
		t.Fatal("expected a settlement signature")
	}
	if !ackReceived {
		t.Fatal("expected the payment-proof retry to reach the winner")
	}

	bal, _ := mockChain.GetSplBalance(context.Background(), winnerWallet.Address, protocol.USDCMint)
	if bal != protocol.GameStakeBaseUnits {
		t.Fatalf("expected winner to be credited %d, got %d", protocol.GameStakeBaseUnits, bal)
	}
	if !node.isGameSignature(sig) {
		t.Fatal("expected the settlement signature to be marked as a game signature")
	}
}

// TestPayWinnerFallsBackWhenHandshakeNeverStarts covers the documented open
// question: if the initial GET /collect never returns valid payment
// requirements, pay by direct transfer instead.
func TestPayWinnerFallsBackWhenHandshakeNeverStarts(t *testing.T) {
	t.Parallel()
	mockChain := chain.NewMockClient()
	node, _ := newTestLoserNode(t, mockChain)

	winnerWallet, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}

	winnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer winnerSrv.Close()

	cmd := protocol.GameCommand{
		OpponentEndpoint: winnerSrv.URL,
		OpponentWallet:   winnerWallet.Address,
		StakeAmount:      protocol.GameStakeBaseUnits,
	}

	sig, err := node.payWinner(context.Background(), cmd)
	if err != nil {
		t.Fatalf("payWinner fallback: %v", err)
	}
	if sig == "" {
		t.Fatal("expected a settlement signature from the fallback transfer")
	}

	bal, _ := mockChain.GetSplBalance(context.Background(), winnerWallet.Address, protocol.USDCMint)
	if bal != protocol.GameStakeBaseUnits {
		t.Fatalf("expected winner to be credited %d via fallback, got %d", protocol.GameStakeBaseUnits, bal)
	}
	if !node.isGameSignature(sig) {
		t.Fatal("expected the fallback signature to be marked as a game signature")
	}
}
