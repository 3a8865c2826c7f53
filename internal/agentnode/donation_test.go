package agentnode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"proofofflip/internal/chain"
	"proofofflip/internal/protocol"
	"proofofflip/internal/wallet"
)

// TestPollDonationsDiscriminatesPaymentFromDonation reproduces spec §8's
// donation-vs-payment scenario: a game settlement transfer must never be
// reported as a donation, while a genuine third-party transfer must be.
func TestPollDonationsDiscriminatesPaymentFromDonation(t *testing.T) {
	t.Parallel()
	var received []donationNotice
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n donationNotice
		json.NewDecoder(r.Body).Decode(&n)
		received = append(received, n)
		w.WriteHeader(http.StatusOK)
	}))
	defer coordinator.Close()

	mockChain := chain.NewMockClient()
	alice, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	bob, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	carol, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	mockChain.Fund(bob.Address, protocol.USDCMint, 1_000_000, 0)
	mockChain.Fund(carol.Address, protocol.USDCMint, 1_000_000, 0)

	node := New(&Config{AgentName: "alice", CoordinatorURL: coordinator.URL}, nil, mockChain)
	node.mu.Lock()
	node.wallet = alice
	node.mu.Unlock()

	ctx := context.Background()
	seen := make(map[string]bool)
	firstRun := true

	// Seed pass: nothing has happened yet, so the pre-existing (empty)
	// history is recorded as already-seen.
	node.pollDonations(ctx, seen, &firstRun)

	// T1: bob pays alice as part of a game settlement.
	gameSig, err := mockChain.Transfer(ctx, bob.PrivateKey, alice.Address, protocol.USDCMint, protocol.GameStakeBaseUnits)
	if err != nil {
		t.Fatalf("game transfer: %v", err)
	}
	node.MarkGameSignature(gameSig)

	// T2: carol sends an unrelated donation.
	donationSig, err := mockChain.Transfer(ctx, carol.PrivateKey, alice.Address, protocol.USDCMint, 250_000)
	if err != nil {
		t.Fatalf("donation transfer: %v", err)
	}
	_ = donationSig

	node.pollDonations(ctx, seen, &firstRun)

	if len(received) != 1 {
		t.Fatalf("expected exactly one donation-confirmed notice, got %d: %+v", len(received), received)
	}
	if received[0].Amount != 250_000 {
		t.Fatalf("expected donation amount 250000, got %d", received[0].Amount)
	}
	if received[0].Donor != carol.Address {
		t.Fatalf("expected donor %s, got %s", carol.Address, received[0].Donor)
	}
}

func TestPollDonationsFirstRunSeedsWithoutReporting(t *testing.T) {
	t.Parallel()
	called := false
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer coordinator.Close()

	mockChain := chain.NewMockClient()
	alice, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	donor, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	mockChain.Fund(donor.Address, protocol.USDCMint, 1_000_000, 0)

	ctx := context.Background()
	if _, err := mockChain.Transfer(ctx, donor.PrivateKey, alice.Address, protocol.USDCMint, 100_000); err != nil {
		t.Fatalf("pre-existing transfer: %v", err)
	}

	node := New(&Config{AgentName: "alice", CoordinatorURL: coordinator.URL}, nil, mockChain)
	node.mu.Lock()
	node.wallet = alice
	node.mu.Unlock()

	seen := make(map[string]bool)
	firstRun := true
	node.pollDonations(ctx, seen, &firstRun)

	time.Sleep(20 * time.Millisecond)
	if called {
		t.Fatal("expected pre-existing history to be seeded as seen, not reported as a donation")
	}
	if firstRun {
		t.Fatal("expected firstRun to be cleared after the seed pass")
	}
}
