package lock

import (
	"context"
	"sync"
)

// KeyedMutex is an in-process Locker. Entries are reference counted and
// dropped when no goroutine holds or waits for the key.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	// sem has capacity one; a buffered value means the key is held.
	sem chan struct{}
	// refs counts holders and waiters.
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*keyEntry),
	}
}

// Acquire implements Locker.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	entry := m.ref(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(key)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-entry.sem
			m.unref(key)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

func (m *KeyedMutex) ref(key string) *keyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		entry = &keyEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = entry
	}

	entry.refs++

	return entry
}

func (m *KeyedMutex) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[key]

	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}
