package loans

import (
	"context"
	"sync"
)

// keyedLock hands out one exclusive lock per key. Entries are dropped once no
// goroutine holds or waits on them, so the map tracks only contended keys.
type keyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*lockEntry)}
}

// acquire blocks until key is free or ctx is done. The returned release func
// is safe to call more than once.
func (k *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		k.forget(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			k.forget(key, e)
		})
	}, nil
}

// acquireAll takes keys in the given order and releases in reverse. Callers
// must always pass keys in the same global order to avoid deadlock.
func (k *keyedLock) acquireAll(ctx context.Context, keys ...string) (func(), error) {
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := k.acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func (k *keyedLock) forget(key string, e *lockEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func bookKey(id string) string     { return "book:" + id }
func borrowerKey(id string) string { return "borrower:" + id }
func loanKey(id string) string     { return "loan:" + id }
