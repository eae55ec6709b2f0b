package remote

import (
	"context"
	"sync"
	"time"
)

// DialFunc establishes a connection to the remote store.
type DialFunc func(ctx context.Context) (Store, error)

// ReconnectingStore wraps a Store whose backend may be unreachable at boot.
// Until a dial succeeds every operation fails with a transient error, so the
// sync engine keeps outbox rows pending and retries on its normal schedule
// rather than marking them synced against a store that never existed. Dial
// attempts are throttled so each failed operation does not pay a full
// connection timeout.
type ReconnectingStore struct {
	dial       DialFunc
	retryEvery time.Duration

	mu      sync.Mutex
	inner   Store
	lastTry time.Time
	lastErr error
}

var _ Store = (*ReconnectingStore)(nil)

func NewReconnectingStore(dial DialFunc, retryEvery time.Duration) *ReconnectingStore {
	return &ReconnectingStore{dial: dial, retryEvery: retryEvery}
}

// store returns the live inner store, dialing if none is connected yet.
// While disconnected and inside the throttle window it returns the last
// dial error without touching the network.
func (s *ReconnectingStore) store(ctx context.Context) (Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inner != nil {
		return s.inner, nil
	}
	if s.lastErr != nil && time.Since(s.lastTry) < s.retryEvery {
		return nil, NewError(KindTransient, s.lastErr)
	}

	s.lastTry = time.Now()
	inner, err := s.dial(ctx)
	if err != nil {
		s.lastErr = err
		return nil, NewError(KindTransient, err)
	}
	s.inner = inner
	s.lastErr = nil
	return inner, nil
}

func (s *ReconnectingStore) Ping(ctx context.Context) error {
	inner, err := s.store(ctx)
	if err != nil {
		return err
	}
	return inner.Ping(ctx)
}

func (s *ReconnectingStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	inner, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return inner.Get(ctx, collection, id)
}

func (s *ReconnectingStore) Upsert(ctx context.Context, collection string, doc Document) error {
	inner, err := s.store(ctx)
	if err != nil {
		return err
	}
	return inner.Upsert(ctx, collection, doc)
}

func (s *ReconnectingStore) ListChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) ([]Document, error) {
	inner, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return inner.ListChangedSince(ctx, collection, since, deviceID)
}

func (s *ReconnectingStore) CountChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) (int, error) {
	inner, err := s.store(ctx)
	if err != nil {
		return 0, err
	}
	return inner.CountChangedSince(ctx, collection, since, deviceID)
}
