// Package hub fans conversation updates out to live subscribers.
package hub

import (
	"sync"

	"github.com/tasksuite/tasks/internal/model"
)

// Hub delivers full conversation snapshots per conversation id. Each
// subscriber holds at most one pending snapshot: a newer one replaces an
// undelivered older one, so a slow reader never blocks Publish.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan model.Conversation
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[int]chan model.Conversation)}
}

// Subscribe returns the update channel for a conversation and a cancel
// function that closes it. Cancel is safe to call more than once.
func (h *Hub) Subscribe(conversationID string) (<-chan model.Conversation, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan model.Conversation, 1)
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[int]chan model.Conversation)
	}
	h.subs[conversationID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[conversationID], id)
			if len(h.subs[conversationID]) == 0 {
				delete(h.subs, conversationID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish hands conv to every subscriber of its conversation.
func (h *Hub) Publish(conv model.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[conv.ID] {
		select {
		case ch <- conv:
			continue
		default:
		}
		// Drop the stale snapshot, then deliver the new one.
		select {
		case <-ch:
		default:
		}
		ch <- conv
	}
}

// Subscribers reports how many channels listen on a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[conversationID])
}
