package chain

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// SystemProgramID and TokenProgramID are the well-known Solana program
// addresses this package's hand-rolled transaction builder targets.
const (
	SystemProgramID              = "11111111111111111111111111111111"
	TokenProgramID               = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID     = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	systemTransferInstruction    = uint32(2)
	tokenTransferInstruction     = byte(3)
)

// deriveATA computes this package's token account address for (owner,
// mint): the base58 encoding of sha256(owner || tokenProgram || mint). It
// does not hash in the associated-token-account program id and performs no
// off-curve bump search, so the result is not the address the standard PDA
// derivation yields; it is a deterministic stand-in used by the local flows
// this repository drives.
func deriveATA(owner, mint string) (string, error) {
	ownerBytes, err := base58.Decode(owner)
	if err != nil {
		return "", err
	}
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", err
	}
	tokenProgramBytes, err := base58.Decode(TokenProgramID)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(ownerBytes)
	h.Write(tokenProgramBytes)
	h.Write(mintBytes)
	sum := h.Sum(nil)
	return base58.Encode(sum[:ed25519.PublicKeySize]), nil
}

// compactUint16 encodes n using Solana's shortvec compact-u16 format, used
// to length-prefix account and instruction arrays in a transaction message.
func compactUint16(n int) []byte {
	var out []byte
	v := uint32(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
