package booking

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memItem struct {
	data    []byte
	expires time.Time
}

// MemoryStore is a SessionStore for a single process. Sessions are stored
// encoded so callers never share memory with the store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	it, ok := m.items[id]
	if ok && !it.expires.IsZero() && !m.now().Before(it.expires) {
		delete(m.items, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(it.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	it := memItem{data: b}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.items[s.ID] = it
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for id, it := range m.items {
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(m.items, id)
		}
	}
}
