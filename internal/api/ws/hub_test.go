package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/pkg/dto"
)

func receive(t *testing.T, c *Client) (dto.WSEvent, bool) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			return dto.WSEvent{}, false
		}
		var ev dto.WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev, true
	case <-time.After(100 * time.Millisecond):
		return dto.WSEvent{}, false
	}
}

func TestHubFiltersByOriginal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	all := &Client{send: make(chan []byte, 4)}
	onlyA := &Client{send: make(chan []byte, 4), originalRef: "a"}
	h.register <- all
	h.register <- onlyA

	h.BroadcastEvent(dto.WSEvent{Type: "match_created", MatchID: uuid.New(), OriginalRef: "b"})
	h.BroadcastEvent(dto.WSEvent{Type: "action_recorded", MatchID: uuid.New(), OriginalRef: "a"})

	if ev, ok := receive(t, all); !ok || ev.OriginalRef != "b" {
		t.Fatalf("unfiltered client first event = %+v, %v", ev, ok)
	}
	if ev, ok := receive(t, all); !ok || ev.OriginalRef != "a" {
		t.Fatalf("unfiltered client second event = %+v, %v", ev, ok)
	}
	if ev, ok := receive(t, onlyA); !ok || ev.Type != "action_recorded" {
		t.Fatalf("filtered client event = %+v, %v", ev, ok)
	}
	if ev, ok := receive(t, onlyA); ok {
		t.Fatalf("filtered client got extra event %+v", ev)
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub()
	go h.Run(ctx)

	slow := &Client{send: make(chan []byte)} // never drained
	h.register <- slow
	waitClients(t, h, 1)
	h.BroadcastEvent(dto.WSEvent{Type: "match_created", OriginalRef: "a"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if clientCount(h) == 0 {
			if _, ok := <-slow.send; ok {
				t.Fatal("send channel should be closed")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("slow client was not disconnected")
}

func clientCount(h *Hub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for clientCount(h) != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", clientCount(h), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
