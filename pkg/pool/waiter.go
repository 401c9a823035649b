// Package pool implements the [target, role]-keyed connection pool that
// sits between frontend sessions and backend.Session connections.
package pool

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrConnectionLimitReached is returned when the global connection limit is reached.
var ErrConnectionLimitReached = errors.New("backend connection limit reached")

// fairWaiter coordinates connection acquisition across multiple target
// pools, enforcing a global connection limit with fair scheduling across
// targets.
//
// Key properties:
//   - Global max connections limit across all target pools (actual DB connections)
//   - Fair scheduling: targets take turns when waiting (round-robin)
//   - Connection stealing: holds a callback (setStealFunc) that reclaims an idle
//     connection of another target; fairWaiter itself never calls it
//
// The type parameter K is the pool key type (target+role), which must be
// comparable for use as a map key.
type fairWaiter[K comparable] struct {
	maxConns int32

	// Actual database connections across all target pools.
	// Incremented in reserve, decremented in release.
	dbConns atomic.Int32

	mu sync.Mutex

	// Per-target wait queues for fair scheduling.
	// When at max capacity, requests are queued per-target and serviced round-robin.
	waiting map[K]*list.List // list of *connWaiter

	// Round-robin scheduling: fixed order of targets provided at construction.
	// When waking, we skip targets not currently in the waiting map.
	keys    []K
	nextIdx int // index into keys for round-robin

	// Callback to find and steal idle connections.
	stealIdleFunc func(exclude K) bool
}

// connWaiter represents a goroutine waiting to acquire a connection slot.
type connWaiter struct {
	ready    chan struct{} // Closed when slot is granted
	canceled atomic.Bool   // Set to true if context was canceled
}

// newFairWaiter creates a new connection manager with the given global max
// connections. keys defines the set of valid pool keys and their
// round-robin order. Waiting on a key not in this slice will panic.
func newFairWaiter[K comparable](maxConns int32, keys []K) *fairWaiter[K] {
	return &fairWaiter[K]{
		maxConns: maxConns,
		waiting:  make(map[K]*list.List),
		keys:     keys,
	}
}

// setStealFunc sets the callback used to steal idle connections from other pools.
// The callback should attempt to close an idle connection from any pool except
// the excluded key, returning true if successful.
func (fw *fairWaiter[K]) setStealFunc(f func(exclude K) bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.stealIdleFunc = f
}

// tryReserveDBConn attempts to reserve a slot for a new database connection.
// Returns true if under limit.
func (fw *fairWaiter[K]) tryReserveDBConn() bool {
	for {
		current := fw.dbConns.Load()
		if current >= fw.maxConns {
			return false
		}
		if fw.dbConns.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// releaseDBConn releases a database connection slot.
func (fw *fairWaiter[K]) releaseDBConn() {
	newVal := fw.dbConns.Add(-1)
	if newVal < 0 {
		panic("fairWaiter: dbConns went negative")
	}
	fw.signalNextWaiter()
}

// currentDBConns returns the current number of actual database connections.
func (fw *fairWaiter[K]) currentDBConns() int32 {
	return fw.dbConns.Load()
}

// waitForTurn waits for this key's fair turn to attempt acquisition.
// Returns nil when it's the key's turn, or ctx.Err() if canceled.
func (fw *fairWaiter[K]) waitForTurn(ctx context.Context, key K) error {
	fw.mu.Lock()

	if fw.dbConns.Load() < fw.maxConns && len(fw.waiting) == 0 {
		fw.mu.Unlock()
		return nil
	}

	w := &connWaiter{ready: make(chan struct{})}

	if !fw.isValidKey(key) {
		panic("fairWaiter: unknown pool key")
	}

	waitList := fw.waiting[key]
	if waitList == nil {
		waitList = list.New()
		fw.waiting[key] = waitList
	}

	elem := waitList.PushBack(w)
	fw.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		w.canceled.Store(true)
		fw.removeWaiter(key, elem)
		return ctx.Err()
	}
}

func (fw *fairWaiter[K]) removeWaiter(key K, elem *list.Element) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	waitList := fw.waiting[key]
	if waitList == nil {
		return
	}
	waitList.Remove(elem)
	if waitList.Len() == 0 {
		delete(fw.waiting, key)
	}
}

// signalNextWaiter wakes the next waiter using round-robin scheduling.
func (fw *fairWaiter[K]) signalNextWaiter() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.wakeNextWaiter()
}

func (fw *fairWaiter[K]) isValidKey(key K) bool {
	for _, k := range fw.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (fw *fairWaiter[K]) wakeNextWaiter() {
	if len(fw.keys) == 0 {
		return
	}

	for i := 0; i < len(fw.keys); i++ {
		idx := (fw.nextIdx + i) % len(fw.keys)
		key := fw.keys[idx]

		waitList := fw.waiting[key]
		if waitList == nil || waitList.Len() == 0 {
			continue
		}

		for e := waitList.Front(); e != nil; {
			w := e.Value.(*connWaiter)
			next := e.Next()

			if w.canceled.Load() {
				waitList.Remove(e)
				e = next
				continue
			}

			close(w.ready)
			waitList.Remove(e)

			if waitList.Len() == 0 {
				delete(fw.waiting, key)
			}

			fw.nextIdx = (idx + 1) % len(fw.keys)
			return
		}

		if waitList.Len() == 0 {
			delete(fw.waiting, key)
		}
	}
}

// stats returns current fair-waiter statistics.
func (fw *fairWaiter[K]) stats() fairWaiterStats {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	stats := fairWaiterStats{
		MaxConns:  fw.maxConns,
		DBConns:   fw.dbConns.Load(),
		Waiting:   int32(len(fw.waiting)),
	}
	for _, waitList := range fw.waiting {
		stats.TotalWaiters += int32(waitList.Len())
	}
	return stats
}

// fairWaiterStats contains connection manager statistics.
type fairWaiterStats struct {
	MaxConns     int32
	DBConns      int32
	Waiting      int32
	TotalWaiters int32
}
