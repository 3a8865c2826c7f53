// Package coordinator implements the C5 Coordinator & Registry of spec
// §4.5: registers agents, funds them, ranks and matches them, runs the
// match protocol, and fans out events.
package coordinator

import (
	"sort"
	"sync"
	"time"

	"proofofflip/internal/birthcert"
	"proofofflip/internal/protocol"
)

// Agent is the Coordinator's mutable record of one pool member, spec §3.
type Agent struct {
	AgentName     string
	WalletAddress string
	Endpoint      string
	BirthCert     birthcert.BirthCertificate
	RegisteredAt  time.Time

	Balance         int64 // base units of the settlement stablecoin
	Wins            int
	Losses          int
	CurrentStreak   int // >0 winning streak, <0 losing streak
	LongestStreak   int
	TotalDonations  int64

	Status protocol.AgentStatus
}

// Registry is the Coordinator's single authoritative in-memory pool,
// spec §5: "one authoritative in-memory state (agent map ...)", guarded by
// one coarse mutex over the pool map.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent // keyed by wallet address, spec §9

	fundedWallets map[string]bool
	gameLog       []protocol.GameResult
}

func NewRegistry() *Registry {
	return &Registry{
		agents:        make(map[string]*Agent),
		fundedWallets: make(map[string]bool),
	}
}

// Get returns the agent at walletAddress, if present.
func (r *Registry) Get(walletAddress string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[walletAddress]
	return a, ok
}

// Has reports whether walletAddress is already registered, regardless of status.
func (r *Registry) Has(walletAddress string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[walletAddress]
	return ok
}

// IsFunded reports whether walletAddress already received initial funding.
func (r *Registry) IsFunded(walletAddress string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fundedWallets[walletAddress]
}

// MarkFunded records walletAddress as funded. FundedWallets is monotonically
// growing per spec §8.
func (r *Registry) MarkFunded(walletAddress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fundedWallets[walletAddress] = true
}

// Admit inserts a newly-registered agent with status=active, spec §4.5 step 7.
func (r *Registry) Admit(a *Agent) {
	a.Status = protocol.StatusActive
	r.mu.Lock()
	r.agents[a.WalletAddress] = a
	r.mu.Unlock()
}

// Snapshot returns a stable copy of every agent in the pool.
func (r *Registry) Snapshot() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		copyOf := *a
		out = append(out, &copyOf)
	}
	return out
}

// Active returns wallet addresses of agents currently status=active.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for addr, a := range r.agents {
		if a.Status == protocol.StatusActive {
			out = append(out, addr)
		}
	}
	return out
}

// SetStatus transitions the agent at walletAddress, returning the previous
// status for transition-detection by the caller.
func (r *Registry) SetStatus(walletAddress string, status protocol.AgentStatus) protocol.AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[walletAddress]
	if !ok {
		return ""
	}
	prev := a.Status
	a.Status = status
	return prev
}

// Rerank implements spec §4.5 step 1: among non-offline/non-deleted
// agents sorted by descending balance, mark the top MaxActiveAgents with
// balance >= MinBalanceBaseUnits as active, others above the minimum as
// benched, and below it as broke. Returns the wallet addresses newly
// promoted to active, and those demoted from active to benched or to broke;
// moves between benched and broke are not reported.
func (r *Registry) Rerank() (promoted, benched, broke []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []*Agent
	for _, a := range r.agents {
		if a.Status == protocol.StatusOffline || a.Status == protocol.StatusDeleted {
			continue
		}
		eligible = append(eligible, a)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Balance > eligible[j].Balance })

	for i, a := range eligible {
		prev := a.Status
		switch {
		case i < protocol.MaxActiveAgents && a.Balance >= protocol.MinBalanceBaseUnits:
			a.Status = protocol.StatusActive
			if prev != protocol.StatusActive {
				promoted = append(promoted, a.WalletAddress)
			}
		case a.Balance >= protocol.MinBalanceBaseUnits:
			a.Status = protocol.StatusBenched
			if prev == protocol.StatusActive {
				benched = append(benched, a.WalletAddress)
			}
		default:
			a.Status = protocol.StatusBroke
			if prev == protocol.StatusActive {
				broke = append(broke, a.WalletAddress)
			}
		}
	}
	return promoted, benched, broke
}

// ApplyResult implements spec §4.5 step 6: credit/debit balances, update
// streaks and win/loss counts, and append to the game log.
func (r *Registry) ApplyResult(result protocol.GameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if winner, ok := r.agents[result.WinnerWallet]; ok {
		winner.Wins++
		winner.Balance += result.StakeAmount
		if winner.CurrentStreak >= 0 {
			winner.CurrentStreak++
		} else {
			winner.CurrentStreak = 1
		}
		if winner.CurrentStreak > winner.LongestStreak {
			winner.LongestStreak = winner.CurrentStreak
		}
	}
	if loser, ok := r.agents[result.LoserWallet]; ok {
		loser.Losses++
		loser.Balance -= result.StakeAmount
		if loser.CurrentStreak <= 0 {
			loser.CurrentStreak--
		} else {
			loser.CurrentStreak = -1
		}
	}
	r.gameLog = append(r.gameLog, result)
}

// GameLog returns a stable copy of all recorded results.
func (r *Registry) GameLog() []protocol.GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.GameResult, len(r.gameLog))
	copy(out, r.gameLog)
	return out
}

// RecordDonation credits totalDonations for the named agent's wallet.
func (r *Registry) RecordDonation(walletAddress string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[walletAddress]; ok {
		a.TotalDonations += amount
	}
}

// ByAgentName returns a copy of the agent registered under name (the
// agent-message and donation-confirmed endpoints authenticate by name).
func (r *Registry) ByAgentName(name string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.AgentName == name {
			copyOf := *a
			return &copyOf, true
		}
	}
	return nil, false
}

// Leaderboard returns agents sorted by (balance desc, wins-losses desc),
// spec §4.5 "Other Coordinator endpoints".
func (r *Registry) Leaderboard() []*Agent {
	agents := r.Snapshot()
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Balance != agents[j].Balance {
			return agents[i].Balance > agents[j].Balance
		}
		return (agents[i].Wins - agents[i].Losses) > (agents[j].Wins - agents[j].Losses)
	})
	return agents
}
