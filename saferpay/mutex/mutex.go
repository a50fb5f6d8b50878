// Package mutex serializes work on a single payment. Local locks cover one
// process; the Redis locker covers several instances sharing a database.
package mutex

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock for key, giving up when ctx is done. The
// returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type entry struct {
	// holds a token while the key is locked
	sem  chan struct{}
	refs int
}

// KeyedMutex is a set of mutexes addressed by key. Entries live only while
// somebody holds or waits for them.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	table map[K]*entry
}

func (m *KeyedMutex[K]) get(key K) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.table == nil {
		m.table = make(map[K]*entry)
	}
	e, ok := m.table[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.table[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex[K]) put(key K, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.table, key)
	}
}

func (m *KeyedMutex[K]) Lock(key K) {
	_ = m.LockContext(context.Background(), key)
}

// LockContext waits for key until ctx is done.
func (m *KeyedMutex[K]) LockContext(ctx context.Context, key K) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.get(key)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.put(key, e)
		return ctx.Err()
	}
}

func (m *KeyedMutex[K]) Unlock(key K) {
	m.mu.Lock()
	e, ok := m.table[key]
	m.mu.Unlock()
	if !ok {
		panic("mutex: unlock of unlocked key")
	}
	select {
	case <-e.sem:
	default:
		panic("mutex: unlock of unlocked key")
	}
	m.put(key, e)
}

// Len returns the number of keys currently held or waited for.
func (m *KeyedMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Local is an in-process Locker.
type Local struct {
	keys KeyedMutex[string]
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	if err := l.keys.LockContext(ctx, key); err != nil {
		return nil, err
	}
	return sync.OnceFunc(func() { l.keys.Unlock(key) }), nil
}
