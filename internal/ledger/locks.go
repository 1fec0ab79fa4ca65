package ledger

import (
	"context"
	"sync"
)

// accountLocks hands out one context-aware lock per account id. Entries are
// dropped once no caller holds or waits on them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

func (a *accountLocks) acquire(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*accountLock)
	}
	lock := a.locks[id]
	if lock == nil {
		lock = &accountLock{sem: make(chan struct{}, 1)}
		a.locks[id] = lock
	}
	lock.refs++
	a.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			a.release(id, lock)
		}, nil
	case <-ctx.Done():
		a.release(id, lock)
		return nil, ctx.Err()
	}
}

func (a *accountLocks) release(id string, lock *accountLock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(a.locks, id)
	}
}
