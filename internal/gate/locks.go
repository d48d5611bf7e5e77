package gate

import (
	"sort"
	"sync"
)

// lockTable serializes requests that touch the same managed file,
// interface or service while unrelated targets proceed concurrently.
// There is no global lock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]*sync.Mutex{}}
}

func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// acquire locks every key in sorted order (stable order prevents
// deadlock between requests sharing a key subset) and returns the
// release function. Callers must release on every exit path.
func (t *lockTable) acquire(keys []string) func() {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		l := t.get(key)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
