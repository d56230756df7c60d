package ledger

import (
	"sort"
	"sync"
)

// keyedLocker hands out one mutex per storage key. Entries are reference
// counted and dropped once nobody holds or waits on them.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyLock)}
}

// lock acquires every key in sorted order and returns the matching unlock.
// Duplicate keys are acquired once.
func (k *keyedLocker) lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	unique := sorted[:0]
	for _, key := range sorted {
		if len(unique) > 0 && key == unique[len(unique)-1] {
			continue
		}
		unique = append(unique, key)
	}

	held := make([]*keyLock, 0, len(unique))
	for _, key := range unique {
		k.mu.Lock()
		entry, ok := k.locks[key]
		if !ok {
			entry = &keyLock{}
			k.locks[key] = entry
		}
		entry.refs++
		k.mu.Unlock()
		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, unique[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
