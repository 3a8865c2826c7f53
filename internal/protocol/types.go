package protocol

// GameCommand is what the Coordinator POSTs to an agent's /play endpoint.
type GameCommand struct {
	GameID           string    `json:"gameId"`
	Role             MatchRole `json:"role"`
	OpponentName     string    `json:"opponentName"`
	OpponentEndpoint string    `json:"opponentEndpoint"`
	OpponentWallet   string    `json:"opponentWallet"`
	StakeAmount      int64     `json:"stakeAmount"`
	Timestamp        int64     `json:"timestamp"`
}

// GameResult is the append-only settlement log entry (spec §3).
type GameResult struct {
	GameID        string `json:"gameId"`
	Winner        string `json:"winner"`
	Loser         string `json:"loser"`
	WinnerWallet  string `json:"winnerWallet"`
	LoserWallet   string `json:"loserWallet"`
	StakeAmount   int64  `json:"stakeAmount"`
	TxSignature   string `json:"txSignature,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// RegisterRequest is the POST /api/register wire body.
type RegisterRequest struct {
	BirthCert interface{} `json:"birthCert"`
	Endpoint  string      `json:"endpoint"`
	Signature string      `json:"signature"`
}

// RegisterResponse is the POST /api/register wire reply.
type RegisterResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SecretAIKey  string `json:"secretAiKey,omitempty"`
}

// PlayAckResponse is what a winner returns immediately from /play.
type PlayAckResponse struct {
	Status string `json:"status"`
}

// PlayPaidResponse is what a loser returns from /play after paying.
type PlayPaidResponse struct {
	Status      string `json:"status"`
	GameID      string `json:"gameId,omitempty"`
	TxSignature string `json:"txSignature,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	AgentName     string `json:"agentName"`
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime"`
	WalletAddress string `json:"walletAddress"`
}

// AttestationResponse is the GET /attestation payload (spec §4.4).
type AttestationResponse struct {
	RTMR3     string `json:"rtmr3"`
	CodeHash  string `json:"codeHash"`
	Timestamp int64  `json:"timestamp"`
	Provider  string `json:"provider"`
	Quote     string `json:"quote"`
	TeePubkey string `json:"teePubkey"`
}

// CollectRequest is the body of the X-Payment header on the retry GET /collect.
type CollectRequest struct {
	TxSignature string `json:"txSignature"`
	Amount      int64  `json:"amount"`
	Payer       string `json:"payer"`
}

// CollectResponse is the 200 body of the retry GET /collect.
type CollectResponse struct {
	Status      string `json:"status"`
	Agent       string `json:"agent"`
	TxSignature string `json:"txSignature"`
}

// TopupRequest is the POST /api/topup-sol body.
type TopupRequest struct {
	AgentName     string `json:"agentName"`
	WalletAddress string `json:"walletAddress"`
}
