package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"

	"proofofflip/internal/wallet"
)

// RPCClient talks to a Solana JSON-RPC endpoint. Nothing in the retrieval
// pack ships a Solana SDK, so this repurposes go-ethereum's rpc.Client —
// itself a generic JSON-RPC 2.0 transport underneath its Ethereum-specific
// callers — driving raw Solana method names through CallContext instead.
// Transaction construction below implements the public Solana wire format
// directly (legacy message, shortvec-encoded account/instruction arrays)
// since no third-party builder exists anywhere in the retrieval pack.
type RPCClient struct {
	rpc *gethrpc.Client
}

// NewRPCClient dials endpoint (an HTTP or WS Solana RPC URL).
func NewRPCClient(ctx context.Context, endpoint string) (*RPCClient, error) {
	c, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing Solana RPC at %s: %w", endpoint, err)
	}
	return &RPCClient{rpc: c}, nil
}

type solValue[T any] struct {
	Value T `json:"value"`
}

func (c *RPCClient) GetSolBalance(ctx context.Context, address string) (int64, error) {
	var resp solValue[int64]
	if err := c.rpc.CallContext(ctx, &resp, "getBalance", address); err != nil {
		return 0, fmt.Errorf("chain: getBalance(%s): %w", address, err)
	}
	return resp.Value, nil
}

type tokenAccountsByOwnerResult struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount string `json:"amount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

func (c *RPCClient) GetSplBalance(ctx context.Context, address, mint string) (int64, error) {
	var resp tokenAccountsByOwnerResult
	filter := map[string]string{"mint": mint}
	opts := map[string]string{"encoding": "jsonParsed"}
	if err := c.rpc.CallContext(ctx, &resp, "getTokenAccountsByOwner", address, filter, opts); err != nil {
		return 0, fmt.Errorf("chain: getTokenAccountsByOwner(%s, %s): %w", address, mint, err)
	}
	var total int64
	for _, acc := range resp.Value {
		var amt int64
		fmt.Sscanf(acc.Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amt)
		total += amt
	}
	return total, nil
}

func (c *RPCClient) EnsureATA(ctx context.Context, payerSecretKey []byte, owner, mint string) error {
	ata, err := deriveATA(owner, mint)
	if err != nil {
		return fmt.Errorf("chain: deriving ATA for %s/%s: %w", owner, mint, err)
	}
	var info solValue[json.RawMessage]
	if err := c.rpc.CallContext(ctx, &info, "getAccountInfo", ata, map[string]string{"encoding": "base64"}); err == nil {
		if string(info.Value) != "null" && len(info.Value) > 0 {
			return nil // already exists
		}
	}
	payer, err := wallet.FromSecretKey(payerSecretKey)
	if err != nil {
		return fmt.Errorf("chain: deriving payer wallet: %w", err)
	}
	ix := instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []accountMeta{
			{Pubkey: payer.Address, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsSigner: false, IsWritable: true},
			{Pubkey: owner, IsSigner: false, IsWritable: false},
			{Pubkey: mint, IsSigner: false, IsWritable: false},
			{Pubkey: SystemProgramID, IsSigner: false, IsWritable: false},
			{Pubkey: TokenProgramID, IsSigner: false, IsWritable: false},
		},
		Data: nil,
	}
	_, err = c.buildSignSend(ctx, payerSecretKey, []instruction{ix})
	return err
}

func (c *RPCClient) Transfer(ctx context.Context, senderSecretKey []byte, recipient, mint string, amount int64) (Signature, error) {
	sender, err := wallet.FromSecretKey(senderSecretKey)
	if err != nil {
		return "", fmt.Errorf("chain: deriving sender wallet: %w", err)
	}
	senderATA, err := deriveATA(sender.Address, mint)
	if err != nil {
		return "", err
	}
	recipientATA, err := deriveATA(recipient, mint)
	if err != nil {
		return "", err
	}
	data := make([]byte, 9)
	data[0] = tokenTransferInstruction
	putUint64LE(data[1:], uint64(amount))
	ix := instruction{
		ProgramID: TokenProgramID,
		Accounts: []accountMeta{
			{Pubkey: senderATA, IsSigner: false, IsWritable: true},
			{Pubkey: recipientATA, IsSigner: false, IsWritable: true},
			{Pubkey: sender.Address, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
	return c.buildSignSend(ctx, senderSecretKey, []instruction{ix})
}

func (c *RPCClient) TransferSol(ctx context.Context, senderSecretKey []byte, recipient string, amount int64) (Signature, error) {
	sender, err := wallet.FromSecretKey(senderSecretKey)
	if err != nil {
		return "", fmt.Errorf("chain: deriving sender wallet: %w", err)
	}
	data := make([]byte, 12)
	putUint32LE(data[0:4], systemTransferInstruction)
	putUint64LE(data[4:], uint64(amount))
	ix := instruction{
		ProgramID: SystemProgramID,
		Accounts: []accountMeta{
			{Pubkey: sender.Address, IsSigner: true, IsWritable: true},
			{Pubkey: recipient, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
	return c.buildSignSend(ctx, senderSecretKey, []instruction{ix})
}

func (c *RPCClient) buildSignSend(ctx context.Context, signerSecretKey []byte, ixs []instruction) (Signature, error) {
	var bh solValue[struct {
		Blockhash string `json:"blockhash"`
	}]
	if err := c.rpc.CallContext(ctx, &bh, "getLatestBlockhash", map[string]string{"commitment": "confirmed"}); err != nil {
		return "", fmt.Errorf("chain: getLatestBlockhash: %w", err)
	}

	signer, err := wallet.FromSecretKey(signerSecretKey)
	if err != nil {
		return "", err
	}
	msg, err := buildMessage(signer.Address, bh.Value.Blockhash, ixs)
	if err != nil {
		return "", fmt.Errorf("chain: building transaction message: %w", err)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(signerSecretKey), msg)

	tx := append(compactUint16(1), sig...)
	tx = append(tx, msg...)
	txB64 := base64.StdEncoding.EncodeToString(tx)

	var sigStr string
	if err := c.rpc.CallContext(ctx, &sigStr, "sendTransaction", txB64, map[string]string{"encoding": "base64"}); err != nil {
		return "", fmt.Errorf("chain: sendTransaction: %w", err)
	}
	if err := c.confirm(ctx, sigStr); err != nil {
		return "", err
	}
	return sigStr, nil
}

func (c *RPCClient) confirm(ctx context.Context, sig string) error {
	for {
		var resp solValue[[]struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		}]
		if err := c.rpc.CallContext(ctx, &resp, "getSignatureStatuses", []string{sig}, map[string]bool{"searchTransactionHistory": true}); err != nil {
			return fmt.Errorf("chain: getSignatureStatuses(%s): %w", sig, err)
		}
		if len(resp.Value) == 0 {
			return fmt.Errorf("chain: signature %s not found", sig)
		}
		status := resp.Value[0]
		if status.Err != nil {
			return fmt.Errorf("chain: transaction %s failed: %v", sig, status.Err)
		}
		if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (c *RPCClient) SignaturesForAddress(ctx context.Context, address string, limit int) ([]Signature, error) {
	var resp []struct {
		Signature string `json:"signature"`
	}
	if err := c.rpc.CallContext(ctx, &resp, "getSignaturesForAddress", address, map[string]int{"limit": limit}); err != nil {
		return nil, fmt.Errorf("chain: getSignaturesForAddress(%s): %w", address, err)
	}
	out := make([]Signature, len(resp))
	for i, r := range resp {
		out[i] = r.Signature
	}
	return out, nil
}

func (c *RPCClient) GetTransaction(ctx context.Context, sig Signature, mint string) (*TxRecord, error) {
	var resp struct {
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			PreTokenBalances []struct {
				Owner   string `json:"owner"`
				Mint    string `json:"mint"`
				UITokenAmount struct {
					Amount string `json:"amount"`
				} `json:"uiTokenAmount"`
			} `json:"preTokenBalances"`
			PostTokenBalances []struct {
				Owner   string `json:"owner"`
				Mint    string `json:"mint"`
				UITokenAmount struct {
					Amount string `json:"amount"`
				} `json:"uiTokenAmount"`
			} `json:"postTokenBalances"`
		} `json:"meta"`
	}
	opts := map[string]interface{}{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0}
	if err := c.rpc.CallContext(ctx, &resp, "getTransaction", sig, opts); err != nil {
		return nil, fmt.Errorf("chain: getTransaction(%s): %w", sig, err)
	}
	pre := map[string]int64{}
	for _, b := range resp.Meta.PreTokenBalances {
		if b.Mint == mint {
			var amt int64
			fmt.Sscanf(b.UITokenAmount.Amount, "%d", &amt)
			pre[b.Owner] = amt
		}
	}
	for _, b := range resp.Meta.PostTokenBalances {
		if b.Mint != mint {
			continue
		}
		var amt int64
		fmt.Sscanf(b.UITokenAmount.Amount, "%d", &amt)
		if delta := amt - pre[b.Owner]; delta > 0 {
			from := ""
			if len(resp.Transaction.Message.AccountKeys) > 0 {
				from = resp.Transaction.Message.AccountKeys[0]
			}
			return &TxRecord{Signature: sig, From: from, Amount: delta}, nil
		}
	}
	return nil, fmt.Errorf("chain: no credit for mint %s found in transaction %s", mint, sig)
}

// --- transaction message construction ---

type accountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

type instruction struct {
	ProgramID string
	Accounts  []accountMeta
	Data      []byte
}

// buildMessage encodes a legacy Solana transaction message: header, account
// keys, recent blockhash, instructions — each length-prefixed with shortvec
// compact-u16, per the public Solana transaction wire format.
func buildMessage(feePayer, recentBlockhash string, ixs []instruction) ([]byte, error) {
	keys := []string{feePayer}
	signerSet := map[string]bool{feePayer: true}
	writableSet := map[string]bool{feePayer: true}
	keyIndex := map[string]int{feePayer: 0}

	addKey := func(pk string, signer, writable bool) {
		if _, ok := keyIndex[pk]; !ok {
			keyIndex[pk] = len(keys)
			keys = append(keys, pk)
		}
		if signer {
			signerSet[pk] = true
		}
		if writable {
			writableSet[pk] = true
		}
	}
	for _, ix := range ixs {
		addKey(ix.ProgramID, false, false)
		for _, a := range ix.Accounts {
			addKey(a.Pubkey, a.IsSigner, a.IsWritable)
		}
	}

	// Reorder: signers first (fee payer already first), then non-signers;
	// within each group, writable before readonly.
	rest := keys[1:]
	var signersWritable, signersReadonly, nonSignersWritable, nonSignersReadonly []string
	for _, k := range rest {
		switch {
		case signerSet[k] && writableSet[k]:
			signersWritable = append(signersWritable, k)
		case signerSet[k]:
			signersReadonly = append(signersReadonly, k)
		case writableSet[k]:
			nonSignersWritable = append(nonSignersWritable, k)
		default:
			nonSignersReadonly = append(nonSignersReadonly, k)
		}
	}
	ordered := []string{feePayer}
	ordered = append(ordered, signersWritable...)
	ordered = append(ordered, signersReadonly...)
	ordered = append(ordered, nonSignersWritable...)
	ordered = append(ordered, nonSignersReadonly...)

	index := map[string]int{}
	for i, k := range ordered {
		index[k] = i
	}

	numSigners := byte(1 + len(signersWritable) + len(signersReadonly))
	numReadonlySigned := byte(len(signersReadonly))
	numReadonlyUnsigned := byte(len(nonSignersReadonly))

	var out []byte
	out = append(out, numSigners, numReadonlySigned, numReadonlyUnsigned)
	out = append(out, compactUint16(len(ordered))...)
	for _, k := range ordered {
		raw, err := base58.Decode(k)
		if err != nil {
			return nil, fmt.Errorf("decoding account key %s: %w", k, err)
		}
		out = append(out, raw...)
	}

	bhRaw, err := base58.Decode(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decoding recent blockhash: %w", err)
	}
	out = append(out, bhRaw...)

	out = append(out, compactUint16(len(ixs))...)
	for _, ix := range ixs {
		out = append(out, byte(index[ix.ProgramID]))
		out = append(out, compactUint16(len(ix.Accounts))...)
		for _, a := range ix.Accounts {
			out = append(out, byte(index[a.Pubkey]))
		}
		out = append(out, compactUint16(len(ix.Data))...)
		out = append(out, ix.Data...)
	}
	return out, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
