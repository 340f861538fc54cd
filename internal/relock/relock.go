package relock

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Mutex is a reentrant mutex. The goroutine holding the lock may acquire it
// again without deadlocking; every Lock must be balanced by an Unlock on the
// same goroutine.
//
// The zero value is an unlocked mutex.
type Mutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (m *Mutex) Lock() {
	id := goid.Get()
	if m.owner.Load() == id {
		m.depth++
		return
	}

	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *Mutex) Unlock() {
	if m.owner.Load() != goid.Get() {
		panic("relock: unlock by a goroutine that does not hold the mutex")
	}

	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// Held reports whether the calling goroutine holds the mutex.
func (m *Mutex) Held() bool {
	return m.owner.Load() == goid.Get()
}
