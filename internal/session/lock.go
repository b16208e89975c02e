package session

import (
	"context"
	"sync"
)

// Locker serializes mutations of a single session.
type Locker interface {
	// Lock blocks until the session's lock is held or ctx is done.
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker with one mutex per session ID.
// Entries are removed when no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock implements Locker.
func (k *KeyedMutex) Lock(ctx context.Context, sessionID string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[sessionID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[sessionID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(sessionID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(sessionID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(sessionID string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, sessionID)
	}
}

// size returns the number of tracked session IDs.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
