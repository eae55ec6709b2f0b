// Package sync reconciles the local store with the remote document store:
// unsynced-count queries, push/pull with last-write-wins conflict resolution,
// retry with backoff behind a circuit breaker, and the re-auth side channel.
package sync

import "sync"

// Event types pushed to the renderer over the SSE stream.
const (
	EventSyncStarted         = "sync-started"
	EventSyncProgress        = "sync-progress"
	EventSyncCompleted       = "sync-completed"
	EventOnlineStatusChanged = "online-status-changed"
	EventUnsyncedData        = "unsynced-data-available"
	EventShowReauthDialog    = "show-reauth-dialog"
	EventAuthError           = "auth-error"
)

// Event is one renderer-bound notification.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hub fans events out to SSE subscribers. Publishing never blocks: a
// subscriber that stops draining loses events rather than stalling sync.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the client disconnects.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber, dropping on full buffers.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount is exposed for the health endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
