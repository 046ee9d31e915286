package ledger

import "sync"

// actorLocks serializes event application per actor. Two concurrent submits
// for the same actor must not interleave their read-modify-write; submits
// for different actors proceed in parallel.
type actorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newActorLocks() *actorLocks {
	return &actorLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given actor and returns the unlock function.
func (l *actorLocks) acquire(actorID string) func() {
	l.mu.Lock()
	m, ok := l.locks[actorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[actorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
