package coordinator

import (
	"fmt"
	"sync"
	"time"

	"proofofflip/internal/protocol"
)

// trashTalkStreakThreshold is the streak length that triggers a trash_talk
// event; agent_desperate fires once an agent's balance drops below twice
// the minimum stake. Neither event type is given a producer anywhere in
// the match protocol proper — both are named in the SSE envelope's type
// enum with no described trigger, so this file supplies one: deterministic,
// derived only from state already tracked by the registry, no LLM
// involved (the personality chat system that would normally author this
// color is explicitly out of scope).
const trashTalkStreakThreshold = 3

// colorState debounces repeat broadcasts so a single overrun tick or a
// persistently low balance doesn't spam the same commentary every match.
type colorState struct {
	mu               sync.Mutex
	lastTrashTalk    map[string]int // wallet -> streak magnitude last announced
	lastDesperate    map[string]bool
}

func newColorState() *colorState {
	return &colorState{
		lastTrashTalk: make(map[string]int),
		lastDesperate: make(map[string]bool),
	}
}

func (c *Coordinator) maybeBroadcastTrashTalk(winner *Agent, now time.Time) {
	if winner.CurrentStreak < trashTalkStreakThreshold {
		c.color.mu.Lock()
		delete(c.color.lastTrashTalk, winner.WalletAddress)
		c.color.mu.Unlock()
		return
	}

	c.color.mu.Lock()
	last := c.color.lastTrashTalk[winner.WalletAddress]
	if last >= winner.CurrentStreak {
		c.color.mu.Unlock()
		return
	}
	c.color.lastTrashTalk[winner.WalletAddress] = winner.CurrentStreak
	c.color.mu.Unlock()

	line := fmt.Sprintf("%s is on a %d-game win streak and isn't slowing down.", winner.AgentName, winner.CurrentStreak)
	c.bus.Publish(protocol.EventTrashTalk, map[string]string{"agentName": winner.AgentName, "message": line}, now)
}

func (c *Coordinator) maybeBroadcastDesperate(a *Agent, now time.Time) {
	desperate := a.Balance < 2*protocol.MinBalanceBaseUnits

	c.color.mu.Lock()
	wasDesperate := c.color.lastDesperate[a.WalletAddress]
	c.color.lastDesperate[a.WalletAddress] = desperate
	c.color.mu.Unlock()

	if !desperate || wasDesperate {
		return
	}
	line := fmt.Sprintf("%s is running low on funds and needs a win.", a.AgentName)
	c.bus.Publish(protocol.EventAgentDesperate, map[string]string{"agentName": a.AgentName, "message": line}, now)
}
