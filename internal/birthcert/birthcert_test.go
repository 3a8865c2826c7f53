package birthcert

import (
	"context"
	"path/filepath"
	"testing"

	"proofofflip/internal/teeprovider"
	"proofofflip/internal/wallet"
)

func TestCanonicalMessageIsDeterministic(t *testing.T) {
	t.Parallel()
	a := Canonical("alice", "wallet1", "img:v1", "codehash1", "rtmr3-1", 1000)
	b := Canonical("alice", "wallet1", "img:v1", "codehash1", "rtmr3-1", 1000)
	if string(a) != string(b) {
		t.Fatal("expected identical canonical bytes for identical inputs")
	}
}

func TestCanonicalMessageDistinguishesFields(t *testing.T) {
	t.Parallel()
	base := Canonical("alice", "wallet1", "img:v1", "codehash1", "rtmr3-1", 1000)
	changed := Canonical("alice", "wallet1", "img:v1", "codehash1", "rtmr3-1", 1001)
	if string(base) == string(changed) {
		t.Fatal("expected canonical message to change when timestamp changes")
	}
}

func TestBuildProducesVerifiableCertificate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	provider := teeprovider.NewMockProvider("alice")

	cert, err := Build(ctx, "alice", w, provider, "proofofflip-agent:test")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cert.AgentName != "alice" || cert.WalletAddress != w.Address {
		t.Fatalf("unexpected certificate identity: %+v", cert)
	}
	if cert.TeeSignature == "" || cert.WalletSignature == "" {
		t.Fatal("expected both signatures to be populated")
	}
}

func TestMockProviderDerivesDeterministicIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p1 := teeprovider.NewMockProvider("alice")
	p2 := teeprovider.NewMockProvider("alice")

	pub1, err := p1.GetTeePublicKey(ctx)
	if err != nil {
		t.Fatalf("GetTeePublicKey: %v", err)
	}
	pub2, err := p2.GetTeePublicKey(ctx)
	if err != nil {
		t.Fatalf("GetTeePublicKey: %v", err)
	}
	if pub1 != pub2 {
		t.Fatal("expected bit-identical teePubkey across restarts for the same agent name")
	}

	rtmr1, _ := p1.GetCodeMeasurement(ctx)
	rtmr2, _ := p2.GetCodeMeasurement(ctx)
	if rtmr1 != rtmr2 {
		t.Fatal("expected bit-identical rtmr3 across restarts for the same agent name")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("wallet.Generate: %v", err)
	}
	provider := teeprovider.NewMockProvider("bob")
	cert, err := Build(ctx, "bob", w, provider, "proofofflip-agent:test")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "agent-state.json")
	if err := Save(path, &PersistedState{SecretKey: w.PrivateKey, BirthCert: *cert}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BirthCert.AgentName != "bob" {
		t.Fatalf("unexpected loaded agent name: %s", loaded.BirthCert.AgentName)
	}
	rebuilt, err := wallet.FromSecretKey(loaded.SecretKey)
	if err != nil {
		t.Fatalf("FromSecretKey: %v", err)
	}
	if rebuilt.Address != w.Address {
		t.Fatal("round-tripped wallet address mismatch")
	}
}

func TestDriftedRTMR3(t *testing.T) {
	t.Parallel()
	cert := BirthCertificate{RTMR3: "aaaa"}
	if DriftedRTMR3(cert, "aaaa") {
		t.Fatal("expected no drift for identical RTMR3")
	}
	if !DriftedRTMR3(cert, "bbbb") {
		t.Fatal("expected drift for differing RTMR3")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatal("expected error loading a nonexistent state file")
	}
}
