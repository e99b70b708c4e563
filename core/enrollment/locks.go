package enrollment

import (
	"context"
	"sync"
)

// Locker provides a mutual-exclusion scope per key (a course code).
// unlock must be called exactly once when err is nil.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockArena is an in-process Locker holding one lock per key.
// Entries are reference counted and dropped once nobody holds or waits for them.
type LockArena struct {
	mu    sync.Mutex
	locks map[string]*arenaLock
}

type arenaLock struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*LockArena)(nil)

func NewLockArena() *LockArena {
	return &LockArena{locks: make(map[string]*arenaLock)}
}

func (a *LockArena) acquire(key string) *arenaLock {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[key]
	if !ok {
		l = &arenaLock{sem: make(chan struct{}, 1)}
		a.locks[key] = l
	}
	l.refs++
	return l
}

func (a *LockArena) release(key string, l *arenaLock) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(a.locks, key)
	}
}

func (a *LockArena) Lock(ctx context.Context, key string) (func(), error) {
	l := a.acquire(key)
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		a.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			a.release(key, l)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (a *LockArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
