package chain

import (
	"context"
	"fmt"
	"sync"

	"proofofflip/internal/wallet"
)

// MockClient is a deterministic in-memory ledger used for local runs and
// tests, per spec §7 "Funding failure ... in mock/local mode admit anyway
// with a mock balance" and the literal balance arithmetic of spec §8's
// end-to-end scenarios.
type MockClient struct {
	mu sync.Mutex

	solBalances map[string]int64
	splBalances map[string]map[string]int64 // owner -> mint -> base units
	atas        map[string]map[string]bool  // owner -> mint -> exists

	sigs        []Signature
	sigRecords  map[Signature]TxRecord
	addrHistory map[string][]Signature // owner -> signatures touching it, newest first

	nextSigNum int
}

// NewMockClient builds an empty ledger.
func NewMockClient() *MockClient {
	return &MockClient{
		solBalances: make(map[string]int64),
		splBalances: make(map[string]map[string]int64),
		atas:        make(map[string]map[string]bool),
		sigRecords:  make(map[Signature]TxRecord),
		addrHistory: make(map[string][]Signature),
	}
}

// Fund credits address directly, bypassing any transfer bookkeeping — used
// by the Coordinator's initial-funding step and by tests seeding a scenario.
func (m *MockClient) Fund(address, mint string, splAmount, solAmount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solBalances[address] += solAmount
	m.creditSplLocked(address, mint, splAmount)
}

func (m *MockClient) creditSplLocked(address, mint string, amount int64) {
	if m.splBalances[address] == nil {
		m.splBalances[address] = make(map[string]int64)
	}
	m.splBalances[address][mint] += amount
}

func (m *MockClient) GetSolBalance(ctx context.Context, address string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solBalances[address], nil
}

func (m *MockClient) GetSplBalance(ctx context.Context, address, mint string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.splBalances[address][mint], nil
}

func (m *MockClient) EnsureATA(ctx context.Context, payerSecretKey []byte, owner, mint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.atas[owner] == nil {
		m.atas[owner] = make(map[string]bool)
	}
	m.atas[owner][mint] = true
	return nil
}

func (m *MockClient) Transfer(ctx context.Context, senderSecretKey []byte, recipient, mint string, amount int64) (Signature, error) {
	sender, err := wallet.FromSecretKey(senderSecretKey)
	if err != nil {
		return "", fmt.Errorf("chain: deriving sender wallet: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.splBalances[sender.Address][mint] < amount {
		return "", fmt.Errorf("chain: insufficient SPL balance for %s: have %d, need %d", sender.Address, m.splBalances[sender.Address][mint], amount)
	}
	m.splBalances[sender.Address][mint] -= amount
	m.creditSplLocked(recipient, mint, amount)

	sig := m.nextSignatureLocked()
	record := TxRecord{Signature: sig, From: sender.Address, Amount: amount}
	m.recordLocked(sig, record, sender.Address, recipient)
	return sig, nil
}

func (m *MockClient) TransferSol(ctx context.Context, senderSecretKey []byte, recipient string, amount int64) (Signature, error) {
	sender, err := wallet.FromSecretKey(senderSecretKey)
	if err != nil {
		return "", fmt.Errorf("chain: deriving sender wallet: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.solBalances[sender.Address] < amount {
		return "", fmt.Errorf("chain: insufficient SOL balance for %s: have %d, need %d", sender.Address, m.solBalances[sender.Address], amount)
	}
	m.solBalances[sender.Address] -= amount
	m.solBalances[recipient] += amount

	sig := m.nextSignatureLocked()
	record := TxRecord{Signature: sig, From: sender.Address, Amount: amount}
	m.recordLocked(sig, record, sender.Address, recipient)
	return sig, nil
}

func (m *MockClient) nextSignatureLocked() Signature {
	m.nextSigNum++
	return Signature(fmt.Sprintf("mocksig-%08d", m.nextSigNum))
}

func (m *MockClient) recordLocked(sig Signature, record TxRecord, from, to string) {
	m.sigs = append(m.sigs, sig)
	m.sigRecords[sig] = record
	m.addrHistory[to] = append([]Signature{sig}, m.addrHistory[to]...)
	m.addrHistory[from] = append([]Signature{sig}, m.addrHistory[from]...)
}

func (m *MockClient) SignaturesForAddress(ctx context.Context, address string, limit int) ([]Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.addrHistory[address]
	if limit > 0 && len(hist) > limit {
		hist = hist[:limit]
	}
	out := make([]Signature, len(hist))
	copy(out, hist)
	return out, nil
}

func (m *MockClient) GetTransaction(ctx context.Context, sig Signature, mint string) (*TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sigRecords[sig]
	if !ok {
		return nil, fmt.Errorf("chain: unknown signature %s", sig)
	}
	return &record, nil
}
