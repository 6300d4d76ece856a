package bridge

import (
	"sync"

	"github.com/hcpy-go/bridge/internal/session"
)

// Registry is the explicit, lock-guarded replacement for the original
// source's process-wide dictionary of live sessions keyed by device name
// (spec.md §9: "Global per-device map ... reimplementations should pass a
// registry object explicitly"). The Supervisor registers a Session when its
// Run loop starts and unregisters it on every disconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Register associates device with its live Session.
func (r *Registry) Register(device string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[device] = s
}

// Unregister removes device's Session, e.g. on disconnect. It is a no-op if
// the current registration for device is not s (guards against an old
// goroutine clearing a newer registration after a fast reconnect).
func (r *Registry) Unregister(device string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[device] == s {
		delete(r.sessions, device)
	}
}

// Get returns device's current Session, if connected.
func (r *Registry) Get(device string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[device]
	return s, ok
}
