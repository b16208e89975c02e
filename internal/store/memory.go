package store

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/mystic-studio/internal/session"
)

// MemorySessionStore keeps sessions in a map. Idle sessions expire after
// the configured TTL and are pruned lazily on access.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	session   session.EditSession
	expiresAt time.Time
}

// NewMemorySessionStore creates a MemorySessionStore. A ttl of zero means
// sessions never expire.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the stored session.
func (m *MemorySessionStore) Get(_ context.Context, id string) (*session.EditSession, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, session.ErrNotFound
	}
	if m.expired(e) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, session.ErrNotFound
	}
	s := e.session
	return &s, nil
}

// Put stores a copy of s and refreshes its expiry.
func (m *MemorySessionStore) Put(_ context.Context, s *session.EditSession) error {
	e := memoryEntry{session: *s}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	m.sessions[s.ID] = e
	return nil
}

func (m *MemorySessionStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *MemorySessionStore) pruneLocked() {
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}
}

// MemoryHistoryStore keeps the most recent edits in memory, with images
// kept as the data URIs they were recorded with.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	items    []session.HistoryItem
	capacity int
}

// NewMemoryHistoryStore creates a MemoryHistoryStore that retains at most
// capacity items (MaxHistoryLimit when capacity is not positive).
func NewMemoryHistoryStore(capacity int) *MemoryHistoryStore {
	if capacity <= 0 {
		capacity = MaxHistoryLimit
	}
	return &MemoryHistoryStore{capacity: capacity}
}

// Record appends item, evicting the oldest item when full.
func (m *MemoryHistoryStore) Record(_ context.Context, item session.HistoryItem) (*session.HistoryItem, error) {
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	if item.ID == "" {
		item.ID = newHistoryID(item.Timestamp)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	if len(m.items) > m.capacity {
		m.items = m.items[len(m.items)-m.capacity:]
	}
	return &item, nil
}

// List returns up to limit items, newest first.
func (m *MemoryHistoryStore) List(_ context.Context, limit int) ([]session.HistoryItem, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]session.HistoryItem, 0, min(limit, len(m.items)))
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.items[i])
	}
	return out, nil
}
