package auth

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/property-service/internal/domain"
	"github.com/spec-kit/property-service/internal/repository"
)

// MemoryStore is an in-memory session store with error injection. It is exported so
// the external auth_test package can share it.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session

	AcquireErr    error
	FindErr       error
	DeactivateErr error
	TouchErr      error
	// BlockAcquire makes Acquire wait until its context is done.
	BlockAcquire bool

	acquired      int
	released      int
	deactivations int
}

func NewMemoryStore(sessions ...domain.Session) *MemoryStore {
	store := &MemoryStore{sessions: make(map[string]domain.Session)}
	for _, s := range sessions {
		store.sessions[s.Token] = s
	}
	return store
}

func (m *MemoryStore) Put(session domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
}

func (m *MemoryStore) Get(token string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	return s, ok
}

// Outstanding reports connections acquired but not yet released.
func (m *MemoryStore) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

func (m *MemoryStore) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

func (m *MemoryStore) Deactivations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivations
}

func (m *MemoryStore) Acquire(ctx context.Context) (repository.SessionConn, error) {
	if m.BlockAcquire {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	m.mu.Lock()
	m.acquired++
	m.mu.Unlock()
	return &memoryConn{store: m}, nil
}

type memoryConn struct {
	store    *MemoryStore
	released bool
}

func (c *memoryConn) FindSession(_ context.Context, token string, userID int64) (*domain.Session, error) {
	if c.store.FindErr != nil {
		return nil, c.store.FindErr
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	s, ok := c.store.sessions[token]
	if !ok || s.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (c *memoryConn) Deactivate(_ context.Context, token string) error {
	if c.store.DeactivateErr != nil {
		return c.store.DeactivateErr
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.deactivations++
	if s, ok := c.store.sessions[token]; ok {
		s.IsActive = false
		c.store.sessions[token] = s
	}
	return nil
}

func (c *memoryConn) TouchLastActivity(_ context.Context, token string, at time.Time) error {
	if c.store.TouchErr != nil {
		return c.store.TouchErr
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if s, ok := c.store.sessions[token]; ok && s.IsActive && at.After(s.LastActivity) {
		s.LastActivity = at
		c.store.sessions[token] = s
	}
	return nil
}

func (c *memoryConn) Release() {
	if c.released {
		return
	}
	c.released = true
	c.store.mu.Lock()
	c.store.released++
	c.store.mu.Unlock()
}
