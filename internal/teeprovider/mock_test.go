package teeprovider

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestMockProviderIsDeterministicAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p1 := NewMockProvider("alice")
	p2 := NewMockProvider("alice")

	pub1, err := p1.GetTeePublicKey(ctx)
	if err != nil {
		t.Fatalf("GetTeePublicKey: %v", err)
	}
	pub2, err := p2.GetTeePublicKey(ctx)
	if err != nil {
		t.Fatalf("GetTeePublicKey: %v", err)
	}
	if pub1 != pub2 {
		t.Fatal("expected identical teePubkey across independently constructed mock providers for the same agent name")
	}

	rtmr1, _ := p1.GetCodeMeasurement(ctx)
	rtmr2, _ := p2.GetCodeMeasurement(ctx)
	if rtmr1 != rtmr2 {
		t.Fatal("expected identical rtmr3 across independently constructed mock providers for the same agent name")
	}
}

func TestMockProviderDiffersByAgentName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	alice := NewMockProvider("alice")
	bob := NewMockProvider("bob")

	aliceKey, _ := alice.GetTeePublicKey(ctx)
	bobKey, _ := bob.GetTeePublicKey(ctx)
	if aliceKey == bobKey {
		t.Fatal("expected different agent names to derive different teePubkeys")
	}
}

func TestMockProviderSignatureVerifiesAgainstItsOwnPubkey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewMockProvider("alice")

	sig, err := p.SignWithTeeKey(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("SignWithTeeKey: %v", err)
	}
	if sig == "" {
		t.Fatal("expected a non-empty signature")
	}
	pubHex, err := p.GetTeePublicKey(ctx)
	if err != nil {
		t.Fatalf("GetTeePublicKey: %v", err)
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		t.Fatalf("decoding teePubkey: %v", err)
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte("payload"), rawSig) {
		t.Fatal("expected the signature to verify against the provider's own teePubkey")
	}
}

func TestGetAttestationQuoteRoundTripsThroughDecodeMockQuote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewMockProvider("alice")

	quote, err := p.GetAttestationQuote(ctx)
	if err != nil {
		t.Fatalf("GetAttestationQuote: %v", err)
	}
	decoded, ok := DecodeMockQuote(quote)
	if !ok {
		t.Fatal("expected DecodeMockQuote to recognize a mock provider's own quote")
	}
	rtmr3, _ := p.GetCodeMeasurement(ctx)
	if decoded.RTMR3 != rtmr3 {
		t.Fatalf("expected decoded rtmr3 %s to match provider rtmr3 %s", decoded.RTMR3, rtmr3)
	}
}

func TestDecodeMockQuoteRejectsNonMockData(t *testing.T) {
	t.Parallel()
	if _, ok := DecodeMockQuote("not-a-valid-base64-quote!!"); ok {
		t.Fatal("expected garbage input to be rejected, not treated as a mock quote")
	}
}
