package agentnode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"proofofflip/internal/protocol"
	"proofofflip/internal/x402"
)

// payWinner implements the loser-role match protocol of spec §4.4: try the
// x402 handshake first, fall back to a direct transfer only if the
// handshake itself never got off the ground.
//
// Open question resolution (spec §9): once the on-chain transfer succeeds,
// the payment is considered done regardless of whether the ack retry to
// /collect succeeds. The fallback direct transfer never fires after a
// completed x402 payment — only when the initial GET /collect never
// returned valid payment requirements at all.
func (a *AgentNode) payWinner(ctx context.Context, cmd protocol.GameCommand) (string, error) {
	req, x402Err := a.fetchPaymentRequirements(ctx, cmd.OpponentEndpoint)
	if x402Err != nil {
		fmt.Printf("[Match] %s: x402 handshake with %s failed (%v), falling back to direct transfer to %s\n",
			cmd.OpponentName, cmd.OpponentEndpoint, x402Err, cmd.OpponentWallet)
		sig, err := a.transferStake(ctx, cmd.OpponentWallet, cmd.StakeAmount)
		if err != nil {
			return "", fmt.Errorf("fallback direct transfer: %w", err)
		}
		a.MarkGameSignature(sig)
		return sig, nil
	}

	sig, err := a.transferStake(ctx, req.Address, req.Amount)
	if err != nil {
		return "", fmt.Errorf("x402 payment transfer: %w", err)
	}
	a.MarkGameSignature(sig)

	a.acknowledgePayment(ctx, cmd.OpponentEndpoint, x402.PaymentProof{
		TxSignature: sig,
		Amount:      req.Amount,
		Payer:       a.Wallet().Address,
	})
	return sig, nil
}

func (a *AgentNode) fetchPaymentRequirements(ctx context.Context, opponentEndpoint string) (x402.PaymentRequired, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, opponentEndpoint+"/collect", nil)
	if err != nil {
		return x402.PaymentRequired{}, err
	}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return x402.PaymentRequired{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		return x402.PaymentRequired{}, fmt.Errorf("expected 402, got %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return x402.PaymentRequired{}, err
	}
	var req x402.PaymentRequired
	if err := json.Unmarshal(body, &req); err != nil {
		return x402.PaymentRequired{}, fmt.Errorf("decoding payment requirements: %w", err)
	}
	return req, nil
}

func (a *AgentNode) transferStake(ctx context.Context, recipient string, amount int64) (string, error) {
	w := a.Wallet()
	if err := a.chain.EnsureATA(ctx, w.PrivateKey, recipient, protocol.USDCMint); err != nil {
		return "", fmt.Errorf("ensuring recipient ATA: %w", err)
	}
	sig, err := a.chain.Transfer(ctx, w.PrivateKey, recipient, protocol.USDCMint, amount)
	if err != nil {
		return "", err
	}
	return sig, nil
}

// acknowledgePayment retries GET /collect with the payment proof header.
// Per the open-question resolution above, a failure here is logged only —
// the payment already succeeded on-chain.
func (a *AgentNode) acknowledgePayment(ctx context.Context, opponentEndpoint string, proof x402.PaymentProof) {
	headerValue, err := x402.BuildPaymentHeader(proof)
	if err != nil {
		fmt.Printf("[Match] %s: warning: encoding payment proof: %v\n", a.cfg.AgentName, err)
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, opponentEndpoint+"/collect", nil)
	if err != nil {
		fmt.Printf("[Match] %s: warning: building collect ack request: %v\n", a.cfg.AgentName, err)
		return
	}
	httpReq.Header.Set(x402.PaymentHeader, headerValue)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		fmt.Printf("[Match] %s: warning: collect ack to %s failed (payment already sent): %v\n", a.cfg.AgentName, opponentEndpoint, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("[Match] %s: warning: collect ack to %s returned %s (payment already sent)\n", a.cfg.AgentName, opponentEndpoint, resp.Status)
	}
}
