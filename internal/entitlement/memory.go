package entitlement

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entitlement state in process. Intended for development and tests;
// state is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
	events map[string]struct{}
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]State),
		events: make(map[string]struct{}),
		now:    time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, subscriberID string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[subscriberID]
	return st, ok, nil
}

func (s *MemoryStore) Apply(_ context.Context, m Mutation) (Outcome, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[m.EventID]; seen {
		return OutcomeDuplicate, nil
	}
	s.events[m.EventID] = struct{}{}

	if m.Plan == nil {
		return OutcomeRecorded, nil
	}
	cur, ok := s.states[m.SubscriberID]
	if ok && !Supersedes(cur, m.OccurredAt) {
		return OutcomeStale, nil
	}
	s.states[m.SubscriberID] = State{
		SubscriberID: m.SubscriberID,
		Plan:         *m.Plan,
		LastEventID:  m.EventID,
		LastEventAt:  m.OccurredAt,
		UpdatedAt:    s.now().UTC(),
	}
	return OutcomeApplied, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
