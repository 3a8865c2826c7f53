package wallet

import "testing"

func TestGenerateProducesValidAddress(t *testing.T) {
	t.Parallel()
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if w.Address == "" {
		t.Fatal("expected non-empty address")
	}
	pub, err := PubKeyFromAddress(w.Address)
	if err != nil {
		t.Fatalf("PubKeyFromAddress: %v", err)
	}
	if string(pub) != string(w.PublicKey) {
		t.Fatal("round-tripped public key does not match")
	}
}

func TestFromSecretKeyRebuildsSameWallet(t *testing.T) {
	t.Parallel()
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rebuilt, err := FromSecretKey(w.PrivateKey)
	if err != nil {
		t.Fatalf("FromSecretKey: %v", err)
	}
	if rebuilt.Address != w.Address {
		t.Fatalf("rebuilt address %s != original %s", rebuilt.Address, w.Address)
	}
}

func TestFromSecretKeyRejectsWrongLength(t *testing.T) {
	t.Parallel()
	if _, err := FromSecretKey([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short secret key")
	}
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	payload := []byte("register:" + w.Address + ":http://127.0.0.1:8081")
	sig := w.Sign(payload)
	if err := Verify(w.Address, payload, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	t.Parallel()
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sig := w.Sign([]byte("original"))
	if err := Verify(w.Address, []byte("tampered"), sig); err == nil {
		t.Fatal("expected verification failure for tampered payload")
	}
}
