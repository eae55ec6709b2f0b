package sync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrReauthTimeout is returned when the operator does not answer the
// credential prompt before the deadline.
var ErrReauthTimeout = errors.New("Authentication timed out")

// ErrReauthUnknownChannel is returned when a resolution arrives for a
// channel that was never registered or was already consumed.
var ErrReauthUnknownChannel = errors.New("unknown re-auth channel")

// Credentials are what the operator types into the re-auth dialog.
type Credentials struct {
	Email    string
	Password string
}

type reauthResult struct {
	creds Credentials
	ok    bool
}

// ReauthRegistry brokers one-shot credential prompts between the sync
// engine and the UI. Each Request registers a uniquely named channel,
// announces it through the event hub, and waits for exactly one Resolve
// or the timeout, whichever comes first. A channel can never fire twice.
type ReauthRegistry struct {
	mu      sync.Mutex
	pending map[string]chan reauthResult
	hub     *Hub
	timeout time.Duration
}

func NewReauthRegistry(hub *Hub, timeout time.Duration) *ReauthRegistry {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ReauthRegistry{
		pending: make(map[string]chan reauthResult),
		hub:     hub,
		timeout: timeout,
	}
}

func newChannelID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("reauth-%d-%s", time.Now().Unix(), hex.EncodeToString(buf))
}

// Request shows the re-auth dialog and blocks until the operator answers,
// the timeout elapses, or ctx is cancelled. The registration is removed
// before returning in every path, so a late Resolve finds nothing to fire.
func (r *ReauthRegistry) Request(ctx context.Context) (Credentials, error) {
	id := newChannelID()
	ch := make(chan reauthResult, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()

	r.hub.Publish(Event{Type: EventShowReauthDialog, Payload: map[string]any{"channel": id}})

	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	select {
	case res := <-ch:
		if !res.ok {
			return Credentials{}, errors.New("re-auth cancelled")
		}
		return res.creds, nil
	case <-time.After(r.timeout):
		r.hub.Publish(Event{Type: EventAuthError, Payload: map[string]any{
			"success": false,
			"message": ErrReauthTimeout.Error(),
		}})
		return Credentials{}, ErrReauthTimeout
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

// Resolve delivers the operator's answer to a waiting Request. The entry is
// consumed atomically with the lookup so that double resolution, or a
// resolution racing the timeout, fires at most once.
func (r *ReauthRegistry) Resolve(id string, creds Credentials, ok bool) error {
	r.mu.Lock()
	ch, found := r.pending[id]
	if found {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !found {
		return ErrReauthUnknownChannel
	}
	ch <- reauthResult{creds: creds, ok: ok}
	return nil
}

// PendingCount reports how many prompts are currently waiting on an answer.
func (r *ReauthRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
