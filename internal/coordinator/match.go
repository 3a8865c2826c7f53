package coordinator

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"proofofflip/internal/protocol"
)

// runMatchLoop is the periodic ticker of spec §4.5 "Match loop", firing
// every protocol.MatchInterval. A tick that overruns the interval does not
// reschedule (spec §5): the next tick simply runs after this one completes,
// which time.Ticker's single-buffered channel already guarantees.
func (c *Coordinator) runMatchLoop(ctx context.Context) {
	ticker := time.NewTicker(protocol.MatchInterval)
	defer ticker.Stop()

	fmt.Println("[Match] match loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	c.rerankAndBroadcast()

	active := c.registry.Active()
	if len(active) < 2 {
		return
	}
	walletA, walletB, err := pickPair(active)
	if err != nil {
		return
	}

	agentA, okA := c.registry.Get(walletA)
	agentB, okB := c.registry.Get(walletB)
	if !okA || !okB {
		return
	}

	if !c.livenessCheck(ctx, agentA, agentB) {
		return
	}

	winner, loser, err := coinFlip(agentA, agentB)
	if err != nil {
		fmt.Printf("[Match] RNG failure: %v\n", err)
		return
	}

	c.dispatchMatch(ctx, winner, loser)
}

// rerankAndBroadcast implements spec §4.5 step 1.
func (c *Coordinator) rerankAndBroadcast() {
	promoted, benched, broke := c.registry.Rerank()
	now := time.Now()
	for _, addr := range promoted {
		if a, ok := c.registry.Get(addr); ok {
			c.bus.Publish(protocol.EventAgentJoined, a, now)
		}
	}
	for _, addr := range append(benched, broke...) {
		if a, ok := c.registry.Get(addr); ok {
			c.bus.Publish(protocol.EventAgentEvicted, a, now)
			if a.Balance < 2*protocol.MinBalanceBaseUnits {
				c.maybeBroadcastDesperate(a, now)
			}
		}
	}
}

// pickPair selects two distinct wallet addresses uniformly at random
// without replacement, spec §4.5 step 2.
func pickPair(active []string) (string, string, error) {
	i, err := randIndex(len(active))
	if err != nil {
		return "", "", err
	}
	rest := make([]string, 0, len(active)-1)
	for idx, addr := range active {
		if idx != i {
			rest = append(rest, addr)
		}
	}
	j, err := randIndex(len(rest))
	if err != nil {
		return "", "", err
	}
	return active[i], rest[j], nil
}

func randIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("empty selection pool")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// livenessCheck implements spec §4.5 step 3: parallel /health probes, 3s
// timeout each. Any failure marks that agent offline, broadcasts
// agent_evicted, asynchronously consults the VM inventory, and skips the
// tick.
func (c *Coordinator) livenessCheck(ctx context.Context, a, b *Agent) bool {
	type probeResult struct {
		agent *Agent
		alive bool
	}
	results := make(chan probeResult, 2)
	for _, agent := range []*Agent{a, b} {
		go func(ag *Agent) {
			results <- probeResult{agent: ag, alive: c.probeHealth(ctx, ag)}
		}(agent)
	}

	ok := true
	for i := 0; i < 2; i++ {
		r := <-results
		if !r.alive {
			ok = false
			c.registry.SetStatus(r.agent.WalletAddress, protocol.StatusOffline)
			c.bus.Publish(protocol.EventAgentEvicted, r.agent, time.Now())
			go c.checkVMInventory(context.Background(), r.agent)
		}
	}
	return ok
}

func (c *Coordinator) probeHealth(ctx context.Context, a *Agent) bool {
	probeCtx, cancel := context.WithTimeout(ctx, protocol.HealthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// checkVMInventory implements spec §4.5 step 3's asynchronous follow-up:
// downgrade offline -> deleted if the VM no longer exists.
func (c *Coordinator) checkVMInventory(ctx context.Context, a *Agent) {
	if c.vmChecker == nil {
		return
	}
	exists, err := c.vmChecker.Exists(ctx, a.AgentName)
	if err != nil || exists {
		return
	}
	c.registry.SetStatus(a.WalletAddress, protocol.StatusDeleted)
	fmt.Printf("[Match] %s: VM inventory confirms removal, marking deleted\n", a.AgentName)
}

// coinFlip implements spec §4.5 step 4: one unbiased bit from a CSPRNG
// selects winner vs loser. This is the fairness contract — it must never
// be derived from game state.
func coinFlip(a, b *Agent) (winner, loser *Agent, err error) {
	bit, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return nil, nil, err
	}
	if bit.Int64() == 0 {
		return a, b, nil
	}
	return b, a, nil
}

// dispatchMatch implements spec §4.5 step 5/6: dispatch winner first, then
// loser; apply and broadcast the result, or abort per the documented
// failure semantics.
func (c *Coordinator) dispatchMatch(ctx context.Context, winner, loser *Agent) {
	gameID := uuidString()
	now := time.Now()

	winnerCmd := protocol.GameCommand{
		GameID: gameID, Role: protocol.RoleWinner,
		OpponentName: loser.AgentName, OpponentEndpoint: loser.Endpoint, OpponentWallet: loser.WalletAddress,
		StakeAmount: protocol.GameStakeBaseUnits, Timestamp: now.UnixMilli(),
	}
	if _, err := c.dispatchPlay(ctx, winner, winnerCmd); err != nil {
		fmt.Printf("[Match] winner %s unreachable, aborting match: %v\n", winner.AgentName, err)
		c.registry.SetStatus(winner.WalletAddress, protocol.StatusOffline)
		c.bus.Publish(protocol.EventAgentEvicted, winner, now)
		return
	}

	loserCmd := protocol.GameCommand{
		GameID: gameID, Role: protocol.RoleLoser,
		OpponentName: winner.AgentName, OpponentEndpoint: winner.Endpoint, OpponentWallet: winner.WalletAddress,
		StakeAmount: protocol.GameStakeBaseUnits, Timestamp: now.UnixMilli(),
	}
	var txSig string
	body, loserErr := c.dispatchPlay(ctx, loser, loserCmd)
	if loserErr != nil {
		fmt.Printf("[Match] loser %s unreachable after winner ack: %v\n", loser.AgentName, loserErr)
		c.registry.SetStatus(loser.WalletAddress, protocol.StatusOffline)
	} else {
		var paid protocol.PlayPaidResponse
		if err := json.Unmarshal(body, &paid); err == nil {
			txSig = paid.TxSignature
		}
	}

	result := protocol.GameResult{
		GameID: gameID, Winner: winner.AgentName, Loser: loser.AgentName,
		WinnerWallet: winner.WalletAddress, LoserWallet: loser.WalletAddress,
		StakeAmount: protocol.GameStakeBaseUnits, TxSignature: txSig, Timestamp: now.UnixMilli(),
	}
	c.registry.ApplyResult(result)
	c.bus.Publish(protocol.EventGameResult, result, now)
	c.maybeBroadcastTrashTalk(winner, now)
	c.maybeBroadcastDesperate(loser, now)
}

// dispatchPlay POSTs cmd to agent's /play endpoint with the dispatch
// timeout, spec §4.5 step 5 and §5 "Cancellation/timeouts", returning the
// raw response body for the caller to interpret.
func (c *Coordinator) dispatchPlay(ctx context.Context, a *Agent, cmd protocol.GameCommand) ([]byte, error) {
	dispatchCtx, cancel := context.WithTimeout(ctx, protocol.DispatchTimeout)
	defer cancel()

	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(dispatchCtx, http.MethodPost, a.Endpoint+"/play", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned %s: %s", resp.Status, string(body))
	}
	return body, nil
}

func uuidString() string {
	return uuid.NewString()
}
