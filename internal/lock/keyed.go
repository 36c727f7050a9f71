// Package lock provides per-key mutual exclusion for serializing writes that
// touch the same room or registrant within one process.
package lock

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Keyed hands out one mutex per key. Entries are dropped once no goroutine
// holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed builds an empty lock table.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until key is held or ctx is done. The returned func releases it.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.release(key, e, true) })
	}, nil
}

// LockAll acquires every key in sorted order so callers locking overlapping
// sets cannot deadlock.
func (k *Keyed) LockAll(ctx context.Context, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	seen := make(map[string]struct{}, len(sorted))
	for _, key := range sorted {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unlock, err := k.Lock(ctx, key)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}

func (k *Keyed) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// Size returns the number of keys currently held or awaited.
func (k *Keyed) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// RoomKey and RegistrantKey keep the two key spaces disjoint.
func RoomKey(id string) string       { return "room:" + id }
func RegistrantKey(id string) string { return "registrant:" + id }
