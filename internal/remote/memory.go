package remote

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and for running registers with
// sync disabled. Failure injection mimics the cloud store's error modes.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document // collection → id → doc

	// FailWith, when set, makes every call return that error.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailWith
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Document)
	}
	s.data[collection][doc.ID] = doc
	return nil
}

func (s *MemoryStore) ListChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var docs []Document
	for _, doc := range s.data[collection] {
		if doc.UpdatedAt.After(since) && doc.DeviceID != deviceID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *MemoryStore) CountChangedSince(ctx context.Context, collection string, since time.Time, deviceID string) (int, error) {
	docs, err := s.ListChangedSince(ctx, collection, since, deviceID)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// SetFailure injects err into every subsequent call; nil restores health.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWith = err
}

var _ Store = (*MemoryStore)(nil)
