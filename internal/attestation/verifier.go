// Package attestation implements the C3 Attestation Verifier of spec §4.3:
// a single entry point that validates a birth certificate end-to-end (quote
// → pubkey → signatures → RTMR3) against an allowlist, and never delegates
// the accept/reject decision to the caller.
package attestation

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"proofofflip/internal/birthcert"
	"proofofflip/internal/teeprovider"
	"proofofflip/internal/wallet"
)

func decodeSignature(sigB64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(sigB64)
}

// Platform identifies which verification branch accepted a certificate.
type Platform string

const (
	PlatformMock   Platform = "mock"
	PlatformTDX    Platform = "tdx"
	PlatformSevSnp Platform = "sev-snp"
)

// Reason codes, short and machine-parsable per spec §9 "Error model": the
// same string is surfaced over the HTTP 400 body and used in tests to match
// on ("TEE signature", "allowlist", ...).
const (
	ReasonOK                = ""
	ReasonQuoteDecode       = "quote decode failed"
	ReasonPubkeyMismatch    = "TEE public key mismatch in quote report-data"
	ReasonTEESignature      = "TEE signature verification failed"
	ReasonRTMR3Mismatch     = "RTMR3 mismatch between quote and birth certificate"
	ReasonAllowlist         = "RTMR3 not present in allowlist"
)

// Result is the verification outcome, spec §4.3: "{ok, reason, rtmr3,
// teePubkey, platform}". Verify never returns anything richer than this to
// the caller — the allowlist decision is made internally.
type Result struct {
	OK        bool
	Reason    string
	RTMR3     string
	TeePubkey string
	Platform  Platform
}

// QuoteParser resolves an attestation quote (base64/hex, hardware-signed)
// into its report-data and RTMR3 fields. The external-parser-first,
// local-fallback-second policy lives in quote.go's CompositeParser.
type QuoteParser interface {
	Parse(ctx context.Context, quoteB64 string) (reportData []byte, rtmr3 string, platform Platform, err error)
}

// Verify runs the six ordered rules of spec §4.3 against a birth
// certificate, short-circuiting on the first failure.
func Verify(ctx context.Context, cert birthcert.BirthCertificate, parser QuoteParser, list *Allowlist) Result {
	// Rule 1: mock detection.
	if mockQuote, ok := teeprovider.DecodeMockQuote(cert.AttestationQuote); ok {
		return verifyMock(cert, mockQuote, list)
	}

	// Rule 2: quote parse (external-then-local, handled inside parser).
	reportData, rtmr3, platform, err := parser.Parse(ctx, cert.AttestationQuote)
	if err != nil {
		return Result{OK: false, Reason: ReasonQuoteDecode}
	}

	// Rule 3: pubkey extraction — first 32 bytes of report-data must equal
	// birthCert.teePubkey exactly (case-folded hex compare).
	if len(reportData) < 32 {
		return Result{OK: false, Reason: ReasonQuoteDecode}
	}
	quotePubkeyHex := strings.ToLower(hex.EncodeToString(reportData[:32]))
	certPubkeyHex := strings.ToLower(cert.TeePubkey)
	if quotePubkeyHex != certPubkeyHex {
		return Result{OK: false, Reason: ReasonPubkeyMismatch}
	}

	// Rule 4: TEE signature over the canonical message using that pubkey.
	teePub, err := hex.DecodeString(cert.TeePubkey)
	if err != nil || len(teePub) != ed25519.PublicKeySize {
		return Result{OK: false, Reason: ReasonTEESignature}
	}
	if !verifyEd25519Base64(teePub, cert.CanonicalMessage(), cert.TeeSignature) {
		return Result{OK: false, Reason: ReasonTEESignature}
	}

	// Rule 5: RTMR3 consistency, if the quote exposes one.
	if rtmr3 != "" && !strings.EqualFold(rtmr3, cert.RTMR3) {
		return Result{OK: false, Reason: ReasonRTMR3Mismatch}
	}

	// Rule 6: allowlist.
	if !list.Check(cert.RTMR3) {
		return Result{OK: false, Reason: ReasonAllowlist}
	}

	return Result{OK: true, RTMR3: cert.RTMR3, TeePubkey: cert.TeePubkey, Platform: platform}
}

// verifyMock takes the mock path of rule 1: verify only BC-1 (the TEE
// signature) and allowlist membership.
func verifyMock(cert birthcert.BirthCertificate, quote teeprovider.MockQuote, list *Allowlist) Result {
	teePub, err := hex.DecodeString(cert.TeePubkey)
	if err != nil || len(teePub) != ed25519.PublicKeySize {
		return Result{OK: false, Reason: ReasonTEESignature}
	}
	if !verifyEd25519Base64(teePub, cert.CanonicalMessage(), cert.TeeSignature) {
		return Result{OK: false, Reason: ReasonTEESignature}
	}
	if !list.Check(cert.RTMR3) {
		return Result{OK: false, Reason: ReasonAllowlist}
	}
	return Result{OK: true, RTMR3: cert.RTMR3, TeePubkey: cert.TeePubkey, Platform: PlatformMock}
}

func verifyEd25519Base64(pub ed25519.PublicKey, message []byte, sigB64 string) bool {
	sig, err := decodeSignature(sigB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// VerifyWalletSignature checks BC-2: walletSignature over the canonical
// message using the key derived from walletAddress.
func VerifyWalletSignature(cert birthcert.BirthCertificate) error {
	sig, err := decodeSignature(cert.WalletSignature)
	if err != nil {
		return fmt.Errorf("attestation: decoding wallet signature: %w", err)
	}
	return wallet.Verify(cert.WalletAddress, cert.CanonicalMessage(), sig)
}
