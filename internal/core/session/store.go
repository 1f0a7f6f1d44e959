package session

import (
	"context"
	"errors"
	"sync"
)

// KeyPrefix prefixes every session key
const KeyPrefix = "session_"

// ErrNotFound is returned by Get for an unknown session
var ErrNotFound = errors.New("session not found")

// Record is the value persisted for a session
type Record struct {
	Thread string `json:"thread"`
}

// Store maps a call session to its conversation thread. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
}

// Key returns the store key for a session id
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// MemoryStore keeps records in process. Used for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
