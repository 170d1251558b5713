// Package parallel provides the keyed lock registry serializing mutations
// per entity id across the coordination core.
package parallel

import "sync"

// KeyedLocks serializes work per entity id. One mutex per key, created on
// first use; there is no global lock, so entities never block each other.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks creates an empty lock registry.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*entityLock)}
}

// Acquire blocks until the key's lock is held and returns the release
// function. Lock entries are reclaimed once the last holder releases, so the
// registry does not grow with retired entity ids.
func (k *KeyedLocks) Acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &entityLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len reports the number of live lock entries. Used by tests.
func (k *KeyedLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
