package teeprovider

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	mockTeeKeySeedPrefix = "proofofflip-tee-key:"
	mockRTMR3SeedPrefix  = "proofofflip-rtmr3:"
)

// mockQuote is the JSON payload base64-encoded into a mock attestation quote.
type mockQuote struct {
	Mock       bool   `json:"mock"`
	ReportData string `json:"report_data"`
	RTMR3      string `json:"rtmr3"`
	Timestamp  int64  `json:"timestamp"`
}

// MockProvider derives everything deterministically from agentName so that
// repeated boots of the same named agent produce byte-identical identity
// material, per spec §4.1 "Mock variant contract".
type MockProvider struct {
	agentName string

	once    sync.Once
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	rtmr3   string
	initErr error
}

// NewMockProvider builds a mock TEE provider bound to agentName.
func NewMockProvider(agentName string) *MockProvider {
	return &MockProvider{agentName: agentName}
}

func (m *MockProvider) init() error {
	m.once.Do(func() {
		seed := sha256.Sum256([]byte(mockTeeKeySeedPrefix + m.agentName))
		m.priv = ed25519.NewKeyFromSeed(seed[:])
		m.pub = m.priv.Public().(ed25519.PublicKey)

		rtmrHash := sha256.Sum256([]byte(mockRTMR3SeedPrefix + m.agentName))
		m.rtmr3 = hex.EncodeToString(rtmrHash[:])
	})
	return m.initErr
}

func (m *MockProvider) GetCodeMeasurement(ctx context.Context) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	return m.rtmr3, nil
}

func (m *MockProvider) GetTeePublicKey(ctx context.Context) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	return hex.EncodeToString(m.pub), nil
}

func (m *MockProvider) GetAttestationQuote(ctx context.Context) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	pubHex := hex.EncodeToString(m.pub)
	reportData := pubHex + fmt.Sprintf("%0*d", 128-len(pubHex), 0)
	q := mockQuote{
		Mock:       true,
		ReportData: reportData,
		RTMR3:      m.rtmr3,
		Timestamp:  time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshaling mock quote: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (m *MockProvider) SignWithTeeKey(ctx context.Context, payload []byte) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	sig := ed25519.Sign(m.priv, payload)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// DecodeMockQuote attempts to decode raw as a mock quote, returning ok=false
// (not an error) if it isn't one, so callers can fall through to the
// hardware quote path — mirrors spec §4.3 rule 1 "Mock detection".
func DecodeMockQuote(quoteBase64 string) (report mockQuote, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(quoteBase64)
	if err != nil {
		return mockQuote{}, false
	}
	var q mockQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return mockQuote{}, false
	}
	if !q.Mock {
		return mockQuote{}, false
	}
	return q, true
}

// MockQuote exposes the decoded mock quote fields to the attestation package.
type MockQuote = mockQuote
