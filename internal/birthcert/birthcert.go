// Package birthcert assembles and dual-signs an agent's cryptographic
// identity record (spec §4.2, component C2). A BirthCertificate is
// immutable after creation: every field is captured once, at boot, and
// carried verbatim from then on.
package birthcert

import "fmt"

// BirthCertificate binds an agent's wallet, TEE key, code measurement and
// deployment image into one dual-signed record (spec §3).
type BirthCertificate struct {
	AgentName        string `json:"agentName"`
	WalletAddress    string `json:"walletAddress"`
	DockerImage      string `json:"dockerImage"`
	CodeHash         string `json:"codeHash"`
	RTMR3            string `json:"rtmr3"`
	Timestamp        int64  `json:"timestamp"`
	TeePubkey        string `json:"teePubkey"`
	AttestationQuote string `json:"attestationQuote"`
	TeeSignature     string `json:"teeSignature"`
	WalletSignature  string `json:"walletSignature"`
}

// Canonical builds the exact byte sequence both signatures cover (spec §3):
// "{agentName}:{walletAddress}:{dockerImage}:{codeHash}:{rtmr3}:{timestamp}".
func Canonical(agentName, walletAddress, dockerImage, codeHash, rtmr3 string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:%s:%d", agentName, walletAddress, dockerImage, codeHash, rtmr3, timestamp))
}

// CanonicalMessage returns the canonical signing message for this certificate.
func (b BirthCertificate) CanonicalMessage() []byte {
	return Canonical(b.AgentName, b.WalletAddress, b.DockerImage, b.CodeHash, b.RTMR3, b.Timestamp)
}
