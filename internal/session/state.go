package session

import (
	"sync"

	"github.com/inkbook/session-core/internal/domain"
)

// StateStore owns the observable session state. Only the Controller mutates it;
// everyone else reads or subscribes.
type StateStore struct {
	mu     sync.RWMutex
	state  domain.SessionState
	subs   map[uint64]func(domain.SessionState)
	nextID uint64
}

// NewStateStore returns a store in the initial loading state.
func NewStateStore() *StateStore {
	return &StateStore{
		state: domain.SessionState{Loading: true},
		subs:  make(map[uint64]func(domain.SessionState)),
	}
}

// Get returns the current state.
func (s *StateStore) Get() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every state change and returns its cancel func.
// fn runs synchronously while the controller holds its lock, so it must not
// call back into Controller mutators.
func (s *StateStore) Subscribe(fn func(domain.SessionState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *StateStore) set(next domain.SessionState) {
	s.mu.Lock()
	s.state = next
	subs := make([]func(domain.SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}
