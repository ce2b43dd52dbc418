package execution

import "sync"

// executionLocks serializes mutating operations per execution ID. Entries are
// reference counted so the map does not grow with every execution ever seen.
type executionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newExecutionLocks() *executionLocks {
	return &executionLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the per-execution lock is held and returns the
// release function.
func (l *executionLocks) acquire(id string) func() {
	l.mu.Lock()

	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}

	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()

		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}

		l.mu.Unlock()
	}
}
