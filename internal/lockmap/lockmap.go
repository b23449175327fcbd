// Package lockmap provides exclusive locks keyed by string. Holders of different keys
// never contend; waiters on the same key queue until the holder releases or their
// context ends.
package lockmap

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-engine/internal/syncutils"
)

// ErrWaitTimeout is returned when the lock could not be obtained within the wait bound.
var ErrWaitTimeout = errors.New("lockmap: wait timeout")

type entry struct {
	token chan struct{} // holding the single slot means holding the lock
	refs  int
}

// Map is a set of named locks. The zero value is not usable; call New.
type Map struct {
	mu      syncutils.Mutex
	entries map[string]*entry
}

// New returns an empty lock map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held, ctx is done, or timeout elapses.
// A non-positive timeout waits on ctx alone. The returned release func is idempotent.
func (m *Map) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := m.ref(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case e.token <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.token
				m.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	case <-expired:
		m.unref(key, e)
		return nil, ErrWaitTimeout
	}
}

// Len reports how many keys currently have holders or waiters.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
