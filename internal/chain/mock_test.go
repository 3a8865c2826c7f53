package chain

import (
	"context"
	"testing"

	"proofofflip/internal/wallet"
)

const testMint = "USDCMintPubkeyxxxxxxxxxxxxxxxxxxxxxxxxxxxx"

func mustWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	return w
}

func TestMockClientFundAndBalances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)

	c.Fund(alice.Address, testMint, 1_000_000, 5_000_000)

	spl, err := c.GetSplBalance(ctx, alice.Address, testMint)
	if err != nil || spl != 1_000_000 {
		t.Fatalf("expected spl balance 1000000, got %d err %v", spl, err)
	}
	sol, err := c.GetSolBalance(ctx, alice.Address)
	if err != nil || sol != 5_000_000 {
		t.Fatalf("expected sol balance 5000000, got %d err %v", sol, err)
	}
}

// TestMockClientTransferHappyMatch reproduces spec §8's happy-match balance
// arithmetic: alice pays bob 10,000 base units, so alice.balance=990,000 and
// bob.balance=1,010,000 afterward.
func TestMockClientTransferHappyMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)
	bob := mustWallet(t)
	c.Fund(alice.Address, testMint, 1_000_000, 0)
	c.Fund(bob.Address, testMint, 1_000_000, 0)

	sig, err := c.Transfer(ctx, alice.PrivateKey, bob.Address, testMint, 10_000)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}

	aliceBal, _ := c.GetSplBalance(ctx, alice.Address, testMint)
	bobBal, _ := c.GetSplBalance(ctx, bob.Address, testMint)
	if aliceBal != 990_000 {
		t.Fatalf("expected alice.balance=990000, got %d", aliceBal)
	}
	if bobBal != 1_010_000 {
		t.Fatalf("expected bob.balance=1010000, got %d", bobBal)
	}

	record, err := c.GetTransaction(ctx, sig, testMint)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if record.From != alice.Address || record.Amount != 10_000 {
		t.Fatalf("unexpected transaction record: %+v", record)
	}
}

func TestMockClientTransferInsufficientBalance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)
	bob := mustWallet(t)
	c.Fund(alice.Address, testMint, 5_000, 0)

	if _, err := c.Transfer(ctx, alice.PrivateKey, bob.Address, testMint, 10_000); err == nil {
		t.Fatal("expected insufficient-balance error")
	}
}

func TestMockClientTransferSol(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)
	bob := mustWallet(t)
	c.Fund(alice.Address, testMint, 0, 100_000)

	if _, err := c.TransferSol(ctx, alice.PrivateKey, bob.Address, 40_000); err != nil {
		t.Fatalf("TransferSol: %v", err)
	}
	aliceSol, _ := c.GetSolBalance(ctx, alice.Address)
	bobSol, _ := c.GetSolBalance(ctx, bob.Address)
	if aliceSol != 60_000 || bobSol != 40_000 {
		t.Fatalf("unexpected sol balances after transfer: alice=%d bob=%d", aliceSol, bobSol)
	}
}

func TestMockClientSignaturesForAddressOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)
	bob := mustWallet(t)
	c.Fund(alice.Address, testMint, 1_000_000, 0)

	sig1, err := c.Transfer(ctx, alice.PrivateKey, bob.Address, testMint, 1_000)
	if err != nil {
		t.Fatalf("Transfer 1: %v", err)
	}
	sig2, err := c.Transfer(ctx, alice.PrivateKey, bob.Address, testMint, 2_000)
	if err != nil {
		t.Fatalf("Transfer 2: %v", err)
	}

	sigs, err := c.SignaturesForAddress(ctx, bob.Address, 0)
	if err != nil {
		t.Fatalf("SignaturesForAddress: %v", err)
	}
	if len(sigs) != 2 || sigs[0] != sig2 || sigs[1] != sig1 {
		t.Fatalf("expected newest-first [%s %s], got %v", sig2, sig1, sigs)
	}

	limited, err := c.SignaturesForAddress(ctx, bob.Address, 1)
	if err != nil {
		t.Fatalf("SignaturesForAddress limited: %v", err)
	}
	if len(limited) != 1 || limited[0] != sig2 {
		t.Fatalf("expected limit=1 to return only the newest signature, got %v", limited)
	}
}

func TestMockClientGetTransactionUnknownSignature(t *testing.T) {
	t.Parallel()
	c := NewMockClient()
	if _, err := c.GetTransaction(context.Background(), "does-not-exist", testMint); err == nil {
		t.Fatal("expected error for unknown signature")
	}
}

func TestMockClientEnsureATAIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMockClient()
	alice := mustWallet(t)
	if err := c.EnsureATA(ctx, alice.PrivateKey, alice.Address, testMint); err != nil {
		t.Fatalf("EnsureATA: %v", err)
	}
	if err := c.EnsureATA(ctx, alice.PrivateKey, alice.Address, testMint); err != nil {
		t.Fatalf("EnsureATA second call: %v", err)
	}
}
