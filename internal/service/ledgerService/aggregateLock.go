package ledgerService

import (
	"slices"
	"sync"
)

func stockKey(portfolioID, stockID string) string {
	return "stock:" + portfolioID + ":" + stockID
}

func optionKey(portfolioID, optionSymbol string) string {
	return "option:" + portfolioID + ":" + optionSymbol
}

func sortedKeys(keys []string) []string {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	return slices.Compact(keys)
}

type aggregateLock struct {
	mu   sync.Mutex
	refs int
}

// aggregateLocks is a keyed mutex. Entries live only while someone holds or waits for them.
type aggregateLocks struct {
	mu    sync.Mutex
	locks map[string]*aggregateLock
}

func newAggregateLocks() *aggregateLocks {
	return &aggregateLocks{locks: make(map[string]*aggregateLock)}
}

// Lock acquires every key in sorted order and returns the function releasing them.
func (l *aggregateLocks) Lock(keys ...string) (unlock func()) {
	keys = sortedKeys(keys)

	held := make([]*aggregateLock, 0, len(keys))
	for _, key := range keys {
		l.mu.Lock()
		lock, ok := l.locks[key]
		if !ok {
			lock = &aggregateLock{}
			l.locks[key] = lock
		}
		lock.refs++
		l.mu.Unlock()

		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()

			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *aggregateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
