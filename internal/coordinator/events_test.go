package coordinator

import (
	"testing"
	"time"

	"proofofflip/internal/protocol"
)

func TestEventBusPublishesToSubscriber(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(time.Minute)
	ch, backlog := bus.Subscribe()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog for a fresh bus, got %d entries", len(backlog))
	}

	now := time.Unix(1000, 0)
	bus.Publish(protocol.EventAgentJoined, map[string]string{"agentName": "alice"}, now)

	select {
	case ev := <-ch:
		if ev.Type != protocol.EventAgentJoined {
			t.Fatalf("expected agent_joined event, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEventBusPreservesOrder(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(time.Minute)
	ch, _ := bus.Subscribe()

	now := time.Unix(1000, 0)
	bus.Publish(protocol.EventAgentJoined, "first", now)
	bus.Publish(protocol.EventGameResult, "second", now)
	bus.Publish(protocol.EventAgentEvicted, "third", now)

	want := []protocol.EventType{protocol.EventAgentJoined, protocol.EventGameResult, protocol.EventAgentEvicted}
	for _, w := range want {
		select {
		case ev := <-ch:
			if ev.Type != w {
				t.Fatalf("expected %s, got %s", w, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for ordered event")
		}
	}
}

func TestEventBusBacklogReplayAndWindowTrim(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(time.Minute)

	old := time.Unix(1000, 0)
	bus.Publish(protocol.EventAgentJoined, "old-event", old)

	recent := old.Add(2 * time.Minute) // outside the 1-minute window relative to itself
	bus.Publish(protocol.EventGameResult, "recent-event", recent)

	_, backlog := bus.Subscribe()
	if len(backlog) != 1 {
		t.Fatalf("expected only the recent event to survive the window trim, got %d", len(backlog))
	}
	if backlog[0].Type != protocol.EventGameResult {
		t.Fatalf("expected surviving backlog entry to be game_result, got %s", backlog[0].Type)
	}
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(time.Minute)
	ch, _ := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	if open {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestEventBusSlowClientDropsRatherThanBlocks(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(time.Minute)
	ch, _ := bus.Subscribe()
	now := time.Unix(1000, 0)

	// Publish far more than the channel buffer without draining it; Publish
	// must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(protocol.EventTrashTalk, i, now)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow/undrained client")
	}
	_ = ch
}
