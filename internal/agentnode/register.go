package agentnode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"proofofflip/internal/protocol"
)

// registerWithRetry POSTs the registration payload to the Coordinator,
// bounded at 5 attempts spaced 5s apart, per spec §4.4/§9 "Retry policy".
func (a *AgentNode) registerWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= protocol.RegistrationRetries; attempt++ {
		if err := a.register(ctx); err != nil {
			lastErr = err
			fmt.Printf("[Registration] %s: attempt %d/%d failed: %v\n", a.cfg.AgentName, attempt, protocol.RegistrationRetries, err)
			if attempt < protocol.RegistrationRetries {
				select {
				case <-time.After(protocol.RegistrationRetryDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		fmt.Printf("[Registration] %s: registered with Coordinator\n", a.cfg.AgentName)
		return nil
	}
	return fmt.Errorf("registration failed after %d attempts: %w", protocol.RegistrationRetries, lastErr)
}

func (a *AgentNode) register(ctx context.Context) error {
	w := a.Wallet()
	message := fmt.Sprintf("register:%s:%s", w.Address, a.cfg.Endpoint)
	signature := base64.StdEncoding.EncodeToString(w.Sign([]byte(message)))

	reqBody := protocol.RegisterRequest{
		BirthCert: a.BirthCert(),
		Endpoint:  a.cfg.Endpoint,
		Signature: signature,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encoding registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.CoordinatorURL+"/api/register", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling Coordinator registration endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("Coordinator rejected registration (%s): %s", resp.Status, string(body))
	}

	var respBody protocol.RegisterResponse
	if err := json.Unmarshal(body, &respBody); err != nil {
		return fmt.Errorf("decoding registration response: %w", err)
	}
	if !respBody.Success {
		return fmt.Errorf("Coordinator registration reported failure: %s", respBody.Message)
	}
	return nil
}
