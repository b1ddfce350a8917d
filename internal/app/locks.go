package app

import "sync"

// keyedMutex serializes work per business id within this process. Entries
// are dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refLock)}
}

// Lock blocks until id is free and returns the matching unlock.
func (k *keyedMutex) Lock(id int64) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
