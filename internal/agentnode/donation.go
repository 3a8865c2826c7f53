package agentnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"proofofflip/internal/protocol"
)

// donationSignatureWindow bounds how many recent signatures each poll
// inspects, generalizing the 2000-block cap of the agent mesh's EventWatcher
// (pkg/agent/watcher.go's pollLogs) to Solana's signature-list pagination.
const donationSignatureWindow = 100

type donationNotice struct {
	AgentName string `json:"agentName"`
	Donor     string `json:"donor"`
	Amount    int64  `json:"amount"`
}

// runDonationWatcher polls this agent's own token-account history every
// 15s, per spec §4.5 "Donation ingestion": signatures observed that are
// not in the shared game-payment-signature set are donations. A first-run
// scan records existing history as already-seen so it is never replayed as
// donations, mirroring EventWatcher's lastBlock cursor seeded from the
// current chain head instead of from genesis.
func (a *AgentNode) runDonationWatcher(ctx context.Context) {
	seen := make(map[string]bool)
	firstRun := true

	ticker := time.NewTicker(protocol.DonationPollInterval)
	defer ticker.Stop()

	fmt.Printf("[Donation] %s: watcher started\n", a.cfg.AgentName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollDonations(ctx, seen, &firstRun)
		}
	}
}

func (a *AgentNode) pollDonations(ctx context.Context, seen map[string]bool, firstRun *bool) {
	address := a.Wallet().Address
	sigs, err := a.chain.SignaturesForAddress(ctx, address, donationSignatureWindow)
	if err != nil {
		fmt.Printf("[Donation] %s: SignaturesForAddress error: %v\n", a.cfg.AgentName, err)
		return
	}

	if *firstRun {
		for _, sig := range sigs {
			seen[sig] = true
		}
		*firstRun = false
		return
	}

	for _, sig := range sigs {
		if seen[sig] {
			continue
		}
		seen[sig] = true

		if a.isGameSignature(sig) {
			continue
		}
		record, err := a.chain.GetTransaction(ctx, sig, protocol.USDCMint)
		if err != nil || record == nil || record.Amount <= 0 {
			continue
		}
		a.reportDonation(ctx, record.From, record.Amount)
	}
}

func (a *AgentNode) reportDonation(ctx context.Context, donor string, amount int64) {
	notice := donationNotice{AgentName: a.cfg.AgentName, Donor: donor, Amount: amount}
	raw, err := json.Marshal(notice)
	if err != nil {
		fmt.Printf("[Donation] %s: encoding notice: %v\n", a.cfg.AgentName, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.CoordinatorURL+"/api/donation-confirmed", bytes.NewReader(raw))
	if err != nil {
		fmt.Printf("[Donation] %s: building notice request: %v\n", a.cfg.AgentName, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-Name", a.cfg.AgentName)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		fmt.Printf("[Donation] %s: posting notice failed: %v\n", a.cfg.AgentName, err)
		return
	}
	defer resp.Body.Close()
	fmt.Printf("[Donation] %s: reported donation of %d base units from %s\n", a.cfg.AgentName, amount, donor)
}
