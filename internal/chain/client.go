// Package chain is the sole gateway to the blockchain, kept behind an
// interface because spec §1 treats "the blockchain RPC (SPL token transfer
// + signature confirmation primitives)" as an external collaborator
// reachable only through its interface. Nothing in this repository talks
// to Solana directly outside this package.
package chain

import "context"

// Signature is an opaque base58 transaction signature, used as the
// settlement receipt (spec §4.4 "Transfer primitive").
type Signature = string

// TxRecord is one entry from a wallet's recent transaction history, as
// surfaced to the donation watcher (spec §4.5 "Donation ingestion").
type TxRecord struct {
	Signature Signature
	From      string
	Amount    int64 // SPL base units credited to the watched account
}

// Client is the set of blockchain operations the rest of this repository
// needs (spec §6 "External interfaces"): balances, ATA management, SPL
// transfers with confirmation, and transaction history for the donation
// watcher.
type Client interface {
	// GetSolBalance returns the native-token balance of address, in lamports.
	GetSolBalance(ctx context.Context, address string) (int64, error)
	// GetSplBalance returns the SPL token balance of address for mint, in base units.
	GetSplBalance(ctx context.Context, address, mint string) (int64, error)
	// EnsureATA makes sure owner has an associated token account for mint,
	// creating one (paid for by payer) if it doesn't exist yet.
	EnsureATA(ctx context.Context, payerSecretKey []byte, owner, mint string) error
	// Transfer sends amount base units of mint from the wallet holding
	// senderSecretKey to recipient, confirms at "confirmed" commitment, and
	// returns the transaction signature.
	Transfer(ctx context.Context, senderSecretKey []byte, recipient, mint string, amount int64) (Signature, error)
	// TransferSol sends amount lamports of the native token, for gas top-ups.
	TransferSol(ctx context.Context, senderSecretKey []byte, recipient string, amount int64) (Signature, error)
	// SignaturesForAddress lists recent transaction signatures touching
	// address, newest first, for the donation watcher's polling loop.
	SignaturesForAddress(ctx context.Context, address string, limit int) ([]Signature, error)
	// GetTransaction resolves one signature into a TxRecord describing the
	// SPL transfer it carried, if any.
	GetTransaction(ctx context.Context, sig Signature, mint string) (*TxRecord, error)
}
