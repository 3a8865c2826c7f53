// Package teeprovider implements the C1 capability set of spec.md §4.1: a
// uniform interface over hardware-attested signing, public-key retrieval,
// and code-measurement readout, plus a deterministic mock used by local
// tests. Modeled as a tagged variant (hardware vs mock) sharing one
// capability set, per spec §9 "Dynamic dispatch over TEE provider" and
// grounded on the DummyProvider/TDXProvider split in
// flashbots-adcnet/tdx/attestations.go.
package teeprovider

import "context"

// Provider is the capability set every TEE variant implements.
type Provider interface {
	// GetCodeMeasurement returns the hex RTMR3 code-integrity register value.
	GetCodeMeasurement(ctx context.Context) (string, error)
	// GetTeePublicKey returns the hex ed25519 public key of the enclave keypair.
	GetTeePublicKey(ctx context.Context) (string, error)
	// GetAttestationQuote returns the base64 hardware-signed attestation blob.
	GetAttestationQuote(ctx context.Context) (string, error)
	// SignWithTeeKey returns a base64 ed25519 detached signature over payload.
	SignWithTeeKey(ctx context.Context, payload []byte) (string, error)
}

// Kind identifies which Provider variant is in use, echoed into logs.
type Kind string

const (
	KindMock     Kind = "mock"
	KindHardware Kind = "secretvm"
)
