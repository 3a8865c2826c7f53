package coordinator

import (
	"context"
	"fmt"

	"proofofflip/internal/birthcert"
	"proofofflip/internal/wallet"
)

// ownCert is the Coordinator's own attestation identity, exposed read-only
// via GET /api/attestation and /api/birth-cert (spec §4.5 "Other
// Coordinator endpoints").
type ownCert = birthcert.BirthCertificate

// Boot loads or builds the Coordinator's own wallet and birth certificate,
// kept in two files rather than the agent's single combined blob. Both
// files hold a birthcert.PersistedState JSON object: the wallet file
// carries only secretKey, base64-encoded as encoding/json writes a []byte
// (it is not a bare secret-key byte array), and the identity file carries
// only birthCert.
func (c *Coordinator) Boot(ctx context.Context) error {
	w, err := c.loadOrCreateWallet()
	if err != nil {
		return fmt.Errorf("coordinator: loading wallet: %w", err)
	}
	c.wallet = w

	cert, err := c.loadOrCreateIdentity(ctx, w)
	if err != nil {
		return fmt.Errorf("coordinator: loading identity: %w", err)
	}
	c.cert = cert
	return nil
}

func (c *Coordinator) loadOrCreateWallet() (*wallet.Wallet, error) {
	state, err := birthcert.Load(c.cfg.WalletPath)
	if err == nil {
		return wallet.FromSecretKey(state.SecretKey)
	}
	w, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	if saveErr := birthcert.Save(c.cfg.WalletPath, &birthcert.PersistedState{SecretKey: w.PrivateKey}); saveErr != nil {
		fmt.Printf("[Coordinator] warning: could not persist wallet to %s: %v\n", c.cfg.WalletPath, saveErr)
	}
	return w, nil
}

func (c *Coordinator) loadOrCreateIdentity(ctx context.Context, w *wallet.Wallet) (*ownCert, error) {
	state, err := birthcert.Load(c.cfg.IdentityPath)
	if err == nil {
		cert := state.BirthCert
		return &cert, nil
	}
	cert, err := birthcert.Build(ctx, "coordinator", w, c.provider, c.cfg.DockerImage)
	if err != nil {
		return nil, err
	}
	if saveErr := birthcert.Save(c.cfg.IdentityPath, &birthcert.PersistedState{BirthCert: *cert}); saveErr != nil {
		fmt.Printf("[Coordinator] warning: could not persist identity to %s: %v\n", c.cfg.IdentityPath, saveErr)
	}
	return cert, nil
}
