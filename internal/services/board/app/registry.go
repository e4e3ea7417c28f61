package server

import (
	"sync"

	"github.com/opensetlist/setboard/internal/services/board/storage"
)

// Registry owns the live session aggregates for this process.
//
// Sessions are created on first reference and never evicted: the set of
// sessions is operator-curated (one per show), so unbounded growth is an
// accepted operational concern rather than something the registry polices.
type Registry struct {
	mu       sync.Mutex
	store    storage.Store
	sessions map[string]*Session
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the aggregate for sessionID, creating it on first
// reference. Concurrent calls for the same identifier return the same
// aggregate.
func (r *Registry) GetOrCreate(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if ok {
		return session
	}

	session = newSession(sessionID, r.store)
	r.sessions[sessionID] = session
	return session
}
