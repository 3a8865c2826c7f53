package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"proofofflip/internal/protocol"
)

// Event is one SSE envelope, spec §4.5/§6: "{type, data, timestamp}".
type Event struct {
	Type      protocol.EventType `json:"type"`
	Data      interface{}        `json:"data"`
	Timestamp int64              `json:"timestamp"`
}

// EventBus fans out Events to connected SSE clients and replays a rolling
// backlog to new subscribers, spec §4.5 "Event bus (SSE)". Grounded on the
// agent mesh's callback-slice broadcast (OnCapability/onCapCallbacks),
// generalized here to per-client channels so a slow client can be dropped
// independently.
type EventBus struct {
	mu      sync.Mutex
	clients map[chan Event]bool

	backlogMu sync.Mutex
	backlog   []Event
	window    time.Duration
}

func NewEventBus(window time.Duration) *EventBus {
	if window <= 0 {
		window = protocol.SSEBacklogWindow
	}
	return &EventBus{clients: make(map[chan Event]bool), window: window}
}

// Publish broadcasts an event to every connected client and appends it to
// the backlog, spec §5: "Event order on the bus equals the order of
// broadcast calls inside the Coordinator."
func (b *EventBus) Publish(eventType protocol.EventType, data interface{}, now time.Time) {
	ev := Event{Type: eventType, Data: data, Timestamp: now.UnixMilli()}

	b.backlogMu.Lock()
	b.backlog = append(b.backlog, ev)
	cutoff := now.Add(-b.window).UnixMilli()
	trimmed := b.backlog[:0]
	for _, e := range b.backlog {
		if e.Timestamp >= cutoff {
			trimmed = append(trimmed, e)
		}
	}
	b.backlog = trimmed
	b.backlogMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Writes fan out without per-client flow control (spec §4.5):
			// a client too slow to keep its buffer drained just misses this frame.
		}
	}
}

// Subscribe registers a new SSE client and returns its event channel plus
// a snapshot of the current backlog to replay before live events.
func (b *EventBus) Subscribe() (ch chan Event, backlog []Event) {
	ch = make(chan Event, 64)

	b.backlogMu.Lock()
	backlog = make([]Event, len(b.backlog))
	copy(backlog, b.backlog)
	b.backlogMu.Unlock()

	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch, backlog
}

// Unsubscribe removes a client on stream close, spec §4.5.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
}

// ServeHTTP implements GET /api/events: text/event-stream with an initial
// hello frame, backlog replay, then the live stream (spec §6).
func (b *EventBus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	ch, backlog := b.Subscribe()
	defer b.Unsubscribe(ch)

	for _, ev := range backlog {
		writeSSEEvent(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
}
