package server

import (
	"log"
	"sync"

	"github.com/opensetlist/setboard/internal/services/board/domain"
)

// SnapshotSink receives full-state broadcasts for a session. Implementations
// must tolerate missing intermediate snapshots: each delivery carries the
// complete state, so the latest one always wins.
type SnapshotSink interface {
	SendSnapshot(sessionID string, snapshot domain.Snapshot) error
}

// Router fans out session snapshots to subscribed observers.
//
// Observer lifecycle is independent of session state: unsubscribing a
// disconnected observer never mutates participants or boards, so a
// reconnecting participant finds their prior picks intact.
type Router struct {
	mu          sync.Mutex
	sessionByID map[string]string
	observers   map[string]map[string]SnapshotSink
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		sessionByID: make(map[string]string),
		observers:   make(map[string]map[string]SnapshotSink),
	}
}

// Subscribe registers an observer for a session's broadcasts. Subscribing
// an already-registered observer moves it: an observer watches exactly one
// session at a time.
func (r *Router) Subscribe(sessionID, observerID string, sink SnapshotSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.sessionByID[observerID]; ok && previous != sessionID {
		r.dropLocked(previous, observerID)
	}

	sinks, ok := r.observers[sessionID]
	if !ok {
		sinks = make(map[string]SnapshotSink)
		r.observers[sessionID] = sinks
	}
	sinks[observerID] = sink
	r.sessionByID[observerID] = sessionID
}

// Unsubscribe removes an observer. Unknown observer ids are a no-op.
func (r *Router) Unsubscribe(observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.sessionByID[observerID]
	if !ok {
		return
	}
	r.dropLocked(sessionID, observerID)
}

// Publish delivers the snapshot to every current subscriber of the session.
// Deliveries happen outside the router lock; a failing sink is logged and
// skipped so one broken observer cannot stall the fan-out.
func (r *Router) Publish(sessionID string, snapshot domain.Snapshot) {
	r.mu.Lock()
	sinks := make(map[string]SnapshotSink, len(r.observers[sessionID]))
	for observerID, sink := range r.observers[sessionID] {
		sinks[observerID] = sink
	}
	r.mu.Unlock()

	for observerID, sink := range sinks {
		if err := sink.SendSnapshot(sessionID, snapshot.Clone()); err != nil {
			log.Printf("board: broadcast to observer %s failed: %v", observerID, err)
		}
	}
}

// SubscriberCount reports the current number of observers for a session.
func (r *Router) SubscriberCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers[sessionID])
}

func (r *Router) dropLocked(sessionID, observerID string) {
	if sinks, ok := r.observers[sessionID]; ok {
		delete(sinks, observerID)
		if len(sinks) == 0 {
			delete(r.observers, sessionID)
		}
	}
	delete(r.sessionByID, observerID)
}
