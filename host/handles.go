package host

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/tether/script"
)

// handle is a server-side reference to a space value.
type handle struct {
	id        string
	value     any
	kind      script.RefKind
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// HandleStore maps opaque string IDs to live space values. A value
// referenced by a handle stays reachable from the store, so the Go
// garbage collector cannot reclaim it while the host side may still
// dereference the handle.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	nextID  atomic.Uint64
}

// NewHandleStore creates a new handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[string]*handle)}
}

// Create registers a value and returns its reference.
func (s *HandleStore) Create(value any, kind script.RefKind, sessionID string) script.Ref {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:        id,
		value:     value,
		kind:      kind,
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}
	return script.Ref{Kind: kind, ID: id}
}

// Lookup retrieves the value for a reference. Returns the value and
// true, or nil and false if the handle doesn't exist.
func (s *HandleStore) Lookup(ref script.Ref) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[ref.ID]
	if !ok {
		return nil, false
	}
	h.lastUsed = time.Now()
	return h.value, true
}

// Release removes a handle.
func (s *HandleStore) Release(ref script.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, ref.ID)
}

// ReleaseSession removes all handles owned by a session.
func (s *HandleStore) ReleaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, h := range s.handles {
		if h.sessionID == sessionID {
			delete(s.handles, id)
		}
	}
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
