// Package wallet implements the ed25519 blockchain keypairs owned
// exclusively by each Agent and by the Coordinator itself (spec §3
// "Ownership"). Addresses are base58-encoded ed25519 public keys, the same
// encoding convention Solana wallets use.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// Wallet is a single ed25519 keypair plus its base58 address.
type Wallet struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Address    string
}

// Generate creates a fresh random wallet.
func Generate() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating wallet keypair: %w", err)
	}
	return fromKeypair(pub, priv), nil
}

// FromSecretKey rebuilds a Wallet from a persisted 64-byte ed25519 private key.
func FromSecretKey(secret []byte) (*Wallet, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), secret...))
	pub := priv.Public().(ed25519.PublicKey)
	return fromKeypair(pub, priv), nil
}

func fromKeypair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Wallet {
	return &Wallet{
		PublicKey:  pub,
		PrivateKey: priv,
		Address:    base58.Encode(pub),
	}
}

// Sign produces a detached ed25519 signature over payload.
func (w *Wallet) Sign(payload []byte) []byte {
	return ed25519.Sign(w.PrivateKey, payload)
}

// PubKeyFromAddress decodes a base58 wallet address into an ed25519 public key.
func PubKeyFromAddress(address string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decoding wallet address %q: %w", address, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("wallet address %q decodes to %d bytes, want %d", address, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Verify checks a detached ed25519 signature over payload against a base58 address.
func Verify(address string, payload, signature []byte) error {
	pub, err := PubKeyFromAddress(address)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, signature) {
		return fmt.Errorf("wallet: signature verification failed for address %s", address)
	}
	return nil
}
