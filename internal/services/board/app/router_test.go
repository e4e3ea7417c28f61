package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/opensetlist/setboard/internal/services/board/domain"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
	sessions  []string
	err       error
}

func (r *recordingSink) SendSnapshot(sessionID string, snapshot domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sessions = append(r.sessions, sessionID)
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recordingSink) last() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func TestPublishReachesAllSessionSubscribers(t *testing.T) {
	router := NewRouter()
	first := &recordingSink{}
	second := &recordingSink{}
	other := &recordingSink{}

	router.Subscribe("s1", "obs-1", first)
	router.Subscribe("s1", "obs-2", second)
	router.Subscribe("s2", "obs-3", other)

	router.Publish("s1", domain.Snapshot{Owner: "alice"})

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("expected both s1 observers to receive the snapshot, got %d and %d", first.count(), second.count())
	}
	if other.count() != 0 {
		t.Fatal("expected s2 observer to receive nothing")
	}
	if first.last().Owner != "alice" {
		t.Fatalf("expected snapshot owner alice, got %q", first.last().Owner)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	router := NewRouter()
	sink := &recordingSink{}

	router.Subscribe("s1", "obs-1", sink)
	router.Unsubscribe("obs-1")
	router.Publish("s1", domain.Snapshot{})

	if sink.count() != 0 {
		t.Fatal("expected no delivery after unsubscribe")
	}
	if router.SubscriberCount("s1") != 0 {
		t.Fatal("expected subscriber count to drop to zero")
	}

	// Unknown observers are a no-op.
	router.Unsubscribe("obs-unknown")
}

func TestResubscribeMovesObserver(t *testing.T) {
	router := NewRouter()
	sink := &recordingSink{}

	router.Subscribe("s1", "obs-1", sink)
	router.Subscribe("s2", "obs-1", sink)

	router.Publish("s1", domain.Snapshot{Owner: "stale"})
	router.Publish("s2", domain.Snapshot{Owner: "fresh"})

	if sink.count() != 1 {
		t.Fatalf("expected one delivery after move, got %d", sink.count())
	}
	if sink.last().Owner != "fresh" {
		t.Fatalf("expected delivery from the new session, got %q", sink.last().Owner)
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	router := NewRouter()
	broken := &recordingSink{err: errors.New("gone")}
	healthy := &recordingSink{}

	router.Subscribe("s1", "obs-broken", broken)
	router.Subscribe("s1", "obs-healthy", healthy)

	router.Publish("s1", domain.Snapshot{Owner: "alice"})

	if healthy.count() != 1 {
		t.Fatal("expected healthy observer to receive the snapshot")
	}
}

func TestPublishedSnapshotsAreIndependentCopies(t *testing.T) {
	router := NewRouter()
	sink := &recordingSink{}
	router.Subscribe("s1", "obs-1", sink)

	original := domain.Snapshot{
		Owner:        "alice",
		Participants: []string{"alice"},
		Boards:       map[string]map[string]string{"alice": {"Opener": "Horizon"}},
	}
	router.Publish("s1", original)

	delivered := sink.last()
	delivered.Boards["alice"]["Opener"] = "Mutated"
	if original.Boards["alice"]["Opener"] != "Horizon" {
		t.Fatal("expected published snapshot to be cloned per observer")
	}
}
