package ledger

import (
	"context"
	"sync"
)

// Store persists at most one PendingAction per session.
type Store interface {
	Get(ctx context.Context, session string) (PendingAction, bool, error)
	Put(ctx context.Context, action PendingAction) error
	Delete(ctx context.Context, session string) error
	// Take deletes the session's action only if its nonce equals nonce,
	// and reports whether it did. Exactly one concurrent caller wins.
	Take(ctx context.Context, session, nonce string) (bool, error)
}

// MemoryStore keeps pending actions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string]PendingAction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]PendingAction)}
}

func (s *MemoryStore) Get(_ context.Context, session string) (PendingAction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[session]
	return a, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, action PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.Session] = action
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, session)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, session, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[session]
	if !ok || a.Nonce != nonce {
		return false, nil
	}
	delete(s.actions, session)
	return true, nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}
