// Package tokenstore holds the bearer credential in memory or on disk.
package tokenstore

import (
	"context"
	"sync"

	"github.com/satriahrh/casava/domain/repositories"
)

// MemoryStore keeps the token for the lifetime of the process.
// Every Set or Clear is broadcast to watchers.
type MemoryStore struct {
	mu       sync.RWMutex
	token    string
	watchers map[chan struct{}]struct{}
}

// Ensure MemoryStore implements the TokenStore and TokenWatcher interfaces
var (
	_ repositories.TokenStore   = (*MemoryStore)(nil)
	_ repositories.TokenWatcher = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watchers: make(map[chan struct{}]struct{})}
}

// Set implements TokenStore
func (m *MemoryStore) Set(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	m.notify()
	return nil
}

// Get implements TokenStore
func (m *MemoryStore) Get(ctx context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

// Clear implements TokenStore
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	m.notify()
	return nil
}

// Watch implements TokenWatcher
func (m *MemoryStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}

func (m *MemoryStore) notify() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
