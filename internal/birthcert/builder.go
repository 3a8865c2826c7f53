package birthcert

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"proofofflip/internal/teeprovider"
	"proofofflip/internal/wallet"
)

// Build runs the six-step procedure of spec §4.2: capture rtmr3/teePubkey/
// quote from the TEE provider, compute codeHash, record a timestamp, build
// the canonical message, obtain both signatures, and assemble the record.
// All steps must succeed or the whole operation fails.
func Build(ctx context.Context, agentName string, w *wallet.Wallet, provider teeprovider.Provider, dockerImage string) (*BirthCertificate, error) {
	rtmr3, err := provider.GetCodeMeasurement(ctx)
	if err != nil {
		return nil, fmt.Errorf("birthcert: reading code measurement: %w", err)
	}
	teePubkey, err := provider.GetTeePublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("birthcert: reading TEE public key: %w", err)
	}
	quote, err := provider.GetAttestationQuote(ctx)
	if err != nil {
		return nil, fmt.Errorf("birthcert: reading attestation quote: %w", err)
	}

	codeHash := CodeHash(dockerImage)
	timestamp := time.Now().UnixMilli()

	message := Canonical(agentName, w.Address, dockerImage, codeHash, rtmr3, timestamp)

	teeSigB64, err := provider.SignWithTeeKey(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("birthcert: TEE signing: %w", err)
	}
	walletSig := base64.StdEncoding.EncodeToString(w.Sign(message))

	return &BirthCertificate{
		AgentName:        agentName,
		WalletAddress:    w.Address,
		DockerImage:      dockerImage,
		CodeHash:         codeHash,
		RTMR3:            rtmr3,
		Timestamp:        timestamp,
		TeePubkey:        teePubkey,
		AttestationQuote: quote,
		TeeSignature:     teeSigB64,
		WalletSignature:  walletSig,
	}, nil
}

// CodeHash computes a stable code-identity digest over the deployment
// image string (spec §4.2: "over a stable code-identity input (e.g., the
// manifest)"). The docker image tag is the only code-identity input this
// runtime has access to at boot.
func CodeHash(dockerImage string) string {
	sum := sha256.Sum256([]byte(dockerImage))
	return hex.EncodeToString(sum[:])
}
