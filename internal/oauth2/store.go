package oauth2

import (
	"context"
	"sync"
)

// Store persists the State of one authorization context between runs.
// Implementations must be safe for concurrent use.
type Store interface {
	// TryRestore returns the stored State. ok is false when nothing is stored.
	TryRestore(ctx context.Context) (state *State, ok bool, err error)
	// Store replaces the stored State.
	Store(ctx context.Context, state *State) error
	// Clear removes the stored State. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// NullStore never remembers anything.
type NullStore struct{}

func (NullStore) TryRestore(context.Context) (*State, bool, error) { return nil, false, nil }
func (NullStore) Store(context.Context, *State) error              { return nil }
func (NullStore) Clear(context.Context) error                      { return nil }

// MemoryStore keeps a copy of the State for the lifetime of the process.
type MemoryStore struct {
	state *State
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) TryRestore(context.Context) (*State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, false, nil
	}
	return m.state.Clone(), true, nil
}

func (m *MemoryStore) Store(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state.Clone()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = nil
	return nil
}
