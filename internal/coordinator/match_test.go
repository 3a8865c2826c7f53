package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"proofofflip/internal/protocol"
)

func newTestCoordinator() *Coordinator {
	return New(&Config{}, nil, nil, nil, nil, nil)
}

// TestDispatchMatchHappyPath drives spec §8's happy-match dispatch flow:
// winner acks, loser pays, and a single game_result event carries the
// stake and settlement signature.
func TestDispatchMatchHappyPath(t *testing.T) {
	t.Parallel()
	winnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.PlayAckResponse{Status: "ack"})
	}))
	defer winnerSrv.Close()
	loserSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.PlayPaidResponse{Status: "paid", TxSignature: "mocksig-1"})
	}))
	defer loserSrv.Close()

	c := newTestCoordinator()
	winner := newTestAgent("alice", "alice-wallet", 1_000_000)
	winner.Endpoint = winnerSrv.URL
	loser := newTestAgent("bob", "bob-wallet", 1_000_000)
	loser.Endpoint = loserSrv.URL
	c.registry.Admit(winner)
	c.registry.Admit(loser)

	ch, _ := c.bus.Subscribe()
	c.dispatchMatch(context.Background(), winner, loser)

	select {
	case ev := <-ch:
		if ev.Type != protocol.EventGameResult {
			t.Fatalf("expected game_result event, got %s", ev.Type)
		}
		result, ok := ev.Data.(protocol.GameResult)
		if !ok {
			t.Fatalf("expected event data to be a GameResult, got %T", ev.Data)
		}
		if result.TxSignature != "mocksig-1" {
			t.Fatalf("expected settlement signature to be carried on the result, got %q", result.TxSignature)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for game_result event")
	}

	got, _ := c.registry.Get("alice-wallet")
	if got.Balance != 1_010_000 {
		t.Fatalf("expected winner balance 1010000, got %d", got.Balance)
	}
	lost, _ := c.registry.Get("bob-wallet")
	if lost.Balance != 990_000 {
		t.Fatalf("expected loser balance 990000, got %d", lost.Balance)
	}
}

// TestDispatchMatchDeadWinnerEmitsNoResult reproduces spec §8's dead-winner
// scenario: the winner is unreachable, so the match aborts before the loser
// is ever contacted, no game_result is emitted, the winner is marked
// offline, and the loser's balance is untouched.
func TestDispatchMatchDeadWinnerEmitsNoResult(t *testing.T) {
	t.Parallel()
	loserCalled := false
	loserSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loserCalled = true
		json.NewEncoder(w).Encode(protocol.PlayPaidResponse{Status: "paid"})
	}))
	defer loserSrv.Close()

	c := newTestCoordinator()
	winner := newTestAgent("alice", "alice-wallet", 1_000_000)
	winner.Endpoint = "http://127.0.0.1:1" // unroutable: fails immediately
	loser := newTestAgent("bob", "bob-wallet", 1_000_000)
	loser.Endpoint = loserSrv.URL
	c.registry.Admit(winner)
	c.registry.Admit(loser)

	ch, _ := c.bus.Subscribe()
	c.dispatchMatch(context.Background(), winner, loser)

	select {
	case ev := <-ch:
		if ev.Type != protocol.EventAgentEvicted {
			t.Fatalf("expected only an agent_evicted event for the dead winner, got %s", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for eviction event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("expected no further events after eviction, got %s", ev.Type)
	case <-time.After(200 * time.Millisecond):
	}

	if loserCalled {
		t.Fatal("expected the loser to never be contacted when the winner is dead")
	}
	status, _ := c.registry.Get("alice-wallet")
	if status.Status != protocol.StatusOffline {
		t.Fatalf("expected dead winner status=offline, got %s", status.Status)
	}
	unchanged, _ := c.registry.Get("bob-wallet")
	if unchanged.Balance != 1_000_000 {
		t.Fatalf("expected loser balance untouched at 1000000, got %d", unchanged.Balance)
	}
	if len(c.registry.GameLog()) != 0 {
		t.Fatal("expected no game log entry when the winner never responds")
	}
}

func TestLivenessCheckMarksUnreachableAgentOffline(t *testing.T) {
	t.Parallel()
	aliveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer aliveSrv.Close()

	c := newTestCoordinator()
	alice := newTestAgent("alice", "alice-wallet", 1_000_000)
	alice.Endpoint = aliveSrv.URL
	bob := newTestAgent("bob", "bob-wallet", 1_000_000)
	bob.Endpoint = "http://127.0.0.1:1"
	c.registry.Admit(alice)
	c.registry.Admit(bob)

	ok := c.livenessCheck(context.Background(), alice, bob)
	if ok {
		t.Fatal("expected liveness check to fail when one agent is unreachable")
	}
	got, _ := c.registry.Get("bob-wallet")
	if got.Status != protocol.StatusOffline {
		t.Fatalf("expected unreachable agent status=offline, got %s", got.Status)
	}
}
