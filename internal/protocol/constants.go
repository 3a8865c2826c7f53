// Package protocol holds the wire types and tuning constants shared by the
// Coordinator and the Agent runtime: the registration envelope, the match
// dispatch command, the game log entry, and the numbers spec.md fixes as
// authoritative (stake size, funding size, timeouts).
package protocol

import "time"

const (
	// USDCMint is the SPL mint address for the settlement stablecoin.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// USDCDecimals is the number of base-unit decimals for USDCMint.
	USDCDecimals = 6

	// GameStakeBaseUnits is the fixed stake per match: 0.01 USDC.
	GameStakeBaseUnits int64 = 10_000
	// InitialFundingBaseUnits is granted once per newly-funded wallet: 1.0 USDC.
	InitialFundingBaseUnits int64 = 1_000_000
	// MinBalanceBaseUnits is the minimum balance required to remain active.
	MinBalanceBaseUnits = GameStakeBaseUnits

	MatchInterval          = 60 * time.Second
	DispatchTimeout        = 10 * time.Second
	ParserTimeout          = 10 * time.Second
	RegistrationRetries    = 5
	RegistrationRetryDelay = 5 * time.Second
	DonationPollInterval   = 15 * time.Second
	SSEBacklogWindow       = 15 * time.Minute
	HealthProbeTimeout     = 3 * time.Second

	// MaxActiveAgents caps the top-N by balance promoted to "active" on re-rank.
	MaxActiveAgents = 16
)

// AgentStatus is the lifecycle state of an Agent inside the Coordinator's pool.
type AgentStatus string

const (
	StatusActive  AgentStatus = "active"
	StatusBenched AgentStatus = "benched"
	StatusBroke   AgentStatus = "broke"
	StatusOffline AgentStatus = "offline"
	StatusDeleted AgentStatus = "deleted"
)

// EventType enumerates the SSE envelope types the Coordinator broadcasts.
type EventType string

const (
	EventGameResult     EventType = "game_result"
	EventAgentJoined    EventType = "agent_joined"
	EventAgentEvicted   EventType = "agent_evicted"
	EventTrashTalk      EventType = "trash_talk"
	EventAgentDesperate EventType = "agent_desperate"
	EventDonation       EventType = "donation"
)

// MatchRole is the role an Agent plays for one dispatched GameCommand.
type MatchRole string

const (
	RoleWinner MatchRole = "winner"
	RoleLoser  MatchRole = "loser"
)
