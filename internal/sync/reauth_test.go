package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channelIDFromEvent pulls the announced channel id off the dialog event.
func channelIDFromEvent(t *testing.T, events <-chan Event) string {
	t.Helper()
	select {
	case evt := <-events:
		require.Equal(t, EventShowReauthDialog, evt.Type)
		id, ok := evt.Payload["channel"].(string)
		require.True(t, ok)
		return id
	case <-time.After(time.Second):
		t.Fatal("no show-reauth-dialog event published")
		return ""
	}
}

func TestReauth_ResolveDeliversCredentials(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	reg := NewReauthRegistry(hub, 2*time.Second)

	type result struct {
		creds Credentials
		err   error
	}
	done := make(chan result, 1)
	go func() {
		creds, err := reg.Request(context.Background())
		done <- result{creds, err}
	}()

	id := channelIDFromEvent(t, events)
	require.NoError(t, reg.Resolve(id, Credentials{Email: "op@store.local", Password: "hunter2"}, true))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "op@store.local", res.creds.Email)
	assert.Equal(t, "hunter2", res.creds.Password)
	assert.Equal(t, 0, reg.PendingCount())
}

func TestReauth_DoubleResolveFiresOnce(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	reg := NewReauthRegistry(hub, 2*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := reg.Request(context.Background())
		done <- err
	}()

	id := channelIDFromEvent(t, events)
	require.NoError(t, reg.Resolve(id, Credentials{Email: "a@b.c"}, true))
	// Second resolution finds the entry already consumed.
	assert.ErrorIs(t, reg.Resolve(id, Credentials{Email: "x@y.z"}, true), ErrReauthUnknownChannel)

	require.NoError(t, <-done)
}

func TestReauth_UnknownChannel(t *testing.T) {
	reg := NewReauthRegistry(NewHub(), time.Second)
	err := reg.Resolve("reauth-0-dead", Credentials{}, true)
	assert.ErrorIs(t, err, ErrReauthUnknownChannel)
}

func TestReauth_Timeout(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	reg := NewReauthRegistry(hub, 50*time.Millisecond)

	_, err := reg.Request(context.Background())
	assert.ErrorIs(t, err, ErrReauthTimeout)
	assert.Equal(t, "Authentication timed out", err.Error())
	assert.Equal(t, 0, reg.PendingCount())

	// Dialog request, then the auth-error notification.
	evt := <-events
	assert.Equal(t, EventShowReauthDialog, evt.Type)
	evt = <-events
	assert.Equal(t, EventAuthError, evt.Type)
	assert.Equal(t, false, evt.Payload["success"])
	assert.Equal(t, "Authentication timed out", evt.Payload["message"])
}

func TestReauth_CancelledByOperator(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	reg := NewReauthRegistry(hub, 2*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := reg.Request(context.Background())
		done <- err
	}()

	id := channelIDFromEvent(t, events)
	require.NoError(t, reg.Resolve(id, Credentials{}, false))
	assert.Error(t, <-done)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; extra events are dropped, not deadlocked.
	for i := 0; i < 100; i++ {
		hub.Publish(Event{Type: EventSyncProgress})
	}
	assert.Equal(t, 32, len(ch))
	assert.Equal(t, 1, hub.SubscriberCount())

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())
}
