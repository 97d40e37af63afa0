package concurrency

import "sync"

// IssueLocks hands out one non-blocking lock per issue key. It is shared by
// every session so that two users cannot write the same issue at once.
// Only held keys are stored, so the table stays as small as the number of
// writes in flight.
type IssueLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewIssueLocks creates an empty lock table.
func NewIssueLocks() *IssueLocks {
	return &IssueLocks{held: make(map[string]struct{})}
}

// TryAcquire locks key and reports whether it was free. Keys are compared
// exactly; callers pass normalized issue keys such as "ABC-123".
func (l *IssueLocks) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Release unlocks key and forgets it. Releasing a key that is not held is a
// no-op.
func (l *IssueLocks) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// Held returns the number of keys currently locked.
func (l *IssueLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
