// Package keylock provides per-key mutual exclusion and a non-blocking
// per-key busy flag.
package keylock

import "sync"

// Mutex hands out one lock per key and forgets it once nobody holds or waits on it.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

func New() *Mutex {
	return &Mutex{locks: map[string]*entry{}}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *Mutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len is the number of keys currently held or awaited.
func (k *Mutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Flags is a set of keys marked busy.
type Flags struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewFlags() *Flags {
	return &Flags{busy: map[string]struct{}{}}
}

// TryAcquire marks key busy. It returns false, without blocking, when key is
// already busy.
func (f *Flags) TryAcquire(key string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.busy[key]; taken {
		return nil, false
	}
	f.busy[key] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.busy, key)
		f.mu.Unlock()
	}, true
}
