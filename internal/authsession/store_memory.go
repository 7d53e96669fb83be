package authsession

import (
	"context"
	"sync"
	"time"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// Clock abstracts time for testability; defaults to time.Now.
type Clock func() time.Time

// MemoryStore keeps sessions in a map with lazy expiry. Suitable for tests
// and single-node development; production uses the Redis store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
	clock    Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[domain.SessionID]*Session),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	cp.RequiredActions = append(cp.RequiredActions[:0:0], session.RequiredActions...)
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id domain.SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sess.Expired(s.clock()) {
		delete(s.sessions, id)
		return nil, sentinel.ErrNotFound
	}
	cp := *sess
	cp.RequiredActions = append(cp.RequiredActions[:0:0], sess.RequiredActions...)
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
