package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// SessionStore is an in-process implementation of app.SessionStore.
// Documents are held serialized, exactly like the redis twin, so the
// unmarshal/apply/marshal cycle gives Update natural deep-copy
// semantics. The single mutex makes every update trivially atomic.
type SessionStore struct {
	mu       sync.Mutex
	clock    func() time.Time
	sessions map[string]*storedSession
	offline  map[string]time.Time
}

type storedSession struct {
	data      []byte
	ttl       time.Duration
	expiresAt time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		clock:    time.Now,
		sessions: make(map[string]*storedSession),
		offline:  make(map[string]time.Time),
	}
}

// NewSessionStoreWithClock allows deterministic expiry in tests.
func NewSessionStoreWithClock(clock func() time.Time) *SessionStore {
	s := NewSessionStore()
	s.clock = clock
	return s
}

func (s *SessionStore) Create(_ context.Context, code string, state domain.SessionState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[code]; ok && existing.expiresAt.After(s.clock()) {
		return domain.ErrCodeTaken
	}
	s.sessions[code] = &storedSession{
		data:      data,
		ttl:       ttl,
		expiresAt: s.clock().Add(ttl),
	}
	return nil
}

func (s *SessionStore) Get(_ context.Context, code string) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(code)
}

func (s *SessionStore) getLocked(code string) (domain.SessionState, error) {
	stored, ok := s.sessions[code]
	if !ok || !stored.expiresAt.After(s.clock()) {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	var state domain.SessionState
	if err := json.Unmarshal(stored.data, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return state, nil
}

func (s *SessionStore) Update(_ context.Context, code string, apply func(*domain.SessionState) error) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.getLocked(code)
	if err != nil {
		return domain.SessionState{}, err
	}
	if err := apply(&state); err != nil {
		return domain.SessionState{}, err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("marshal session: %w", err)
	}

	stored := s.sessions[code]
	stored.data = data
	// TTL refreshed on every mutating write, matching the redis twin.
	stored.expiresAt = s.clock().Add(stored.ttl)
	return state, nil
}

func (s *SessionStore) MarkDisconnected(_ context.Context, code, participantID string, grace time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline[code+":"+participantID] = s.clock().Add(grace)
	return nil
}

func (s *SessionStore) IsDisconnected(_ context.Context, code, participantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.offline[code+":"+participantID]
	if !ok {
		return false, nil
	}
	if !deadline.After(s.clock()) {
		delete(s.offline, code+":"+participantID)
		return false, nil
	}
	return true, nil
}

func (s *SessionStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	return nil
}
