// Package storagetest runs the shared conformance suite every board storage
// backend must pass. Backends are interchangeable at runtime, so the suite
// pins their observable behavior to a single contract, down to byte-equal
// snapshot encodings.
package storagetest

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/domain"
	"github.com/opensetlist/setboard/internal/services/board/storage"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against the backend produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, store storage.Store)
	}{
		{"absent session reads empty", testAbsentSessionReadsEmpty},
		{"join round trip", testJoinRoundTrip},
		{"ensure calls are idempotent", testEnsureIdempotent},
		{"owner assignment is first writer wins", testOwnerFirstWriterWins},
		{"owner assignment survives concurrent joins", testOwnerConcurrentJoins},
		{"upsert and delete round trip", testUpsertDeleteRoundTrip},
		{"upsert rejects empty values", testUpsertRejectsEmptyValue},
		{"delete pick is idempotent", testDeletePickIdempotent},
		{"clear board keeps membership", testClearBoardKeepsMembership},
		{"clear session keeps membership", testClearSessionKeepsMembership},
		{"owner assignment creates the session implicitly", testOwnerAssignmentImplicitSession},
		{"remove participant drops board and membership", testRemoveParticipant},
		{"sessions are isolated", testSessionsIsolated},
		{"participants sort case-insensitively", testParticipantOrdering},
		{"snapshot encodes deterministically", testSnapshotEncoding},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() {
				if err := store.Close(); err != nil {
					t.Errorf("close store: %v", err)
				}
			})
			tc.fn(t, store)
		})
	}
}

func join(t *testing.T, store storage.Store, sessionID, name string) {
	t.Helper()
	ctx := context.Background()
	if err := store.EnsureSession(ctx, sessionID); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := store.EnsureParticipant(ctx, sessionID, name); err != nil {
		t.Fatalf("ensure participant: %v", err)
	}
	if err := store.AssignOwnerIfAbsent(ctx, sessionID, name); err != nil {
		t.Fatalf("assign owner: %v", err)
	}
}

func readState(t *testing.T, store storage.Store, sessionID string) domain.Snapshot {
	t.Helper()
	snap, err := store.ReadState(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	return snap
}

func testAbsentSessionReadsEmpty(t *testing.T, store storage.Store) {
	snap := readState(t, store, "never-written")
	if snap.Owner != "" {
		t.Fatalf("expected no owner, got %q", snap.Owner)
	}
	if len(snap.Participants) != 0 {
		t.Fatalf("expected no participants, got %v", snap.Participants)
	}
	if len(snap.Boards) != 0 {
		t.Fatalf("expected no boards, got %v", snap.Boards)
	}
	if snap.Participants == nil || snap.Boards == nil {
		t.Fatal("expected empty snapshot, not nil fields")
	}
}

func testJoinRoundTrip(t *testing.T, store storage.Store) {
	join(t, store, "s1", "alice")

	snap := readState(t, store, "s1")
	if snap.Owner != "alice" {
		t.Fatalf("expected owner alice, got %q", snap.Owner)
	}
	if !reflect.DeepEqual(snap.Participants, []string{"alice"}) {
		t.Fatalf("expected participants [alice], got %v", snap.Participants)
	}
	board, ok := snap.Boards["alice"]
	if !ok {
		t.Fatal("expected a board entry for alice")
	}
	if board == nil || len(board) != 0 {
		t.Fatalf("expected an empty board, got %v", board)
	}
}

func testEnsureIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	// Re-running the join sequence must not disturb owner or picks.
	join(t, store, "s1", "alice")

	snap := readState(t, store, "s1")
	if snap.Owner != "alice" {
		t.Fatalf("expected owner alice after replay, got %q", snap.Owner)
	}
	if snap.Boards["alice"]["Opener"] != "Horizon" {
		t.Fatalf("expected pick to survive replay, got %v", snap.Boards["alice"])
	}
	if len(snap.Participants) != 1 {
		t.Fatalf("expected one participant after replay, got %v", snap.Participants)
	}
}

func testOwnerFirstWriterWins(t *testing.T, store storage.Store) {
	join(t, store, "s1", "alice")
	join(t, store, "s1", "bob")

	snap := readState(t, store, "s1")
	if snap.Owner != "alice" {
		t.Fatalf("expected first joiner to own the session, got %q", snap.Owner)
	}
	if !reflect.DeepEqual(snap.Participants, []string{"alice", "bob"}) {
		t.Fatalf("expected both participants, got %v", snap.Participants)
	}
}

func testOwnerConcurrentJoins(t *testing.T, store storage.Store) {
	ctx := context.Background()
	names := []string{"alice", "bob", "carol", "dave"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = store.EnsureSession(ctx, "race")
			_ = store.EnsureParticipant(ctx, "race", name)
			_ = store.AssignOwnerIfAbsent(ctx, "race", name)
		}(name)
	}
	wg.Wait()

	snap := readState(t, store, "race")
	if snap.Owner == "" {
		t.Fatal("expected exactly one owner, got none")
	}
	found := false
	for _, name := range names {
		if snap.Owner == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("owner %q is not one of the joiners", snap.Owner)
	}
	if len(snap.Participants) != len(names) {
		t.Fatalf("expected %d participants, got %v", len(names), snap.Participants)
	}
}

func testUpsertDeleteRoundTrip(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")

	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}
	if got := readState(t, store, "s1").Boards["alice"]["Opener"]; got != "Horizon" {
		t.Fatalf("expected Horizon, got %q", got)
	}

	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Undertow"); err != nil {
		t.Fatalf("overwrite pick: %v", err)
	}
	if got := readState(t, store, "s1").Boards["alice"]["Opener"]; got != "Undertow" {
		t.Fatalf("expected overwrite to win, got %q", got)
	}

	if err := store.DeletePick(ctx, "s1", "alice", "Opener"); err != nil {
		t.Fatalf("delete pick: %v", err)
	}
	board := readState(t, store, "s1").Boards["alice"]
	if _, ok := board["Opener"]; ok {
		t.Fatalf("expected slot key to be removed entirely, got %v", board)
	}
}

func testUpsertRejectsEmptyValue(t *testing.T, store storage.Store) {
	join(t, store, "s1", "alice")
	err := store.UpsertPick(context.Background(), "s1", "alice", "Opener", "")
	if err == nil {
		t.Fatal("expected empty value to be rejected")
	}
	if apperrors.CodeOf(err) != apperrors.CodePickValueEmpty {
		t.Fatalf("expected pick value empty code, got %v", err)
	}
}

func testDeletePickIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	if err := store.DeletePick(ctx, "s1", "alice", "Opener"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	after := readState(t, store, "s1")

	if err := store.DeletePick(ctx, "s1", "alice", "Opener"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if !reflect.DeepEqual(readState(t, store, "s1"), after) {
		t.Fatal("expected repeated delete to leave state unchanged")
	}
}

func testClearBoardKeepsMembership(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	join(t, store, "s1", "bob")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}
	if err := store.UpsertPick(ctx, "s1", "bob", "Encore", "Departures"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	if err := store.ClearBoard(ctx, "s1", "alice"); err != nil {
		t.Fatalf("clear board: %v", err)
	}

	snap := readState(t, store, "s1")
	if len(snap.Boards["alice"]) != 0 {
		t.Fatalf("expected alice's board to be empty, got %v", snap.Boards["alice"])
	}
	if snap.Boards["bob"]["Encore"] != "Departures" {
		t.Fatal("expected bob's board to be untouched")
	}
	if !snap.HasParticipant("alice") {
		t.Fatal("expected alice to remain a participant")
	}
}

func testClearSessionKeepsMembership(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	join(t, store, "s1", "bob")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}
	if err := store.UpsertPick(ctx, "s1", "bob", "Encore", "Departures"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	if err := store.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clear session: %v", err)
	}

	snap := readState(t, store, "s1")
	if !reflect.DeepEqual(snap.Participants, []string{"alice", "bob"}) {
		t.Fatalf("expected membership preserved, got %v", snap.Participants)
	}
	for name, board := range snap.Boards {
		if len(board) != 0 {
			t.Fatalf("expected %s's board to be empty, got %v", name, board)
		}
	}
	if snap.Owner != "alice" {
		t.Fatalf("expected owner preserved, got %q", snap.Owner)
	}
}

func testOwnerAssignmentImplicitSession(t *testing.T, store storage.Store) {
	ctx := context.Background()

	// Sessions exist implicitly on first reference: assigning an owner
	// without a prior ensure must create the session and stick.
	if err := store.AssignOwnerIfAbsent(ctx, "s1", "alice"); err != nil {
		t.Fatalf("assign owner without ensure: %v", err)
	}

	snap := readState(t, store, "s1")
	if snap.Owner != "alice" {
		t.Fatalf("expected owner alice, got %q", snap.Owner)
	}
	if len(snap.Participants) != 0 {
		t.Fatalf("expected no participants yet, got %v", snap.Participants)
	}

	// A later ensure or competing assignment must not displace the owner.
	if err := store.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := store.AssignOwnerIfAbsent(ctx, "s1", "bob"); err != nil {
		t.Fatalf("assign owner second time: %v", err)
	}
	if snap := readState(t, store, "s1"); snap.Owner != "alice" {
		t.Fatalf("expected owner to remain alice, got %q", snap.Owner)
	}
}

func testRemoveParticipant(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	join(t, store, "s1", "bob")
	if err := store.UpsertPick(ctx, "s1", "bob", "Encore", "Departures"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	if err := store.RemoveParticipant(ctx, "s1", "bob"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}

	snap := readState(t, store, "s1")
	if snap.HasParticipant("bob") {
		t.Fatal("expected bob to be removed from membership")
	}
	if _, ok := snap.Boards["bob"]; ok {
		t.Fatal("expected bob's board to be removed")
	}

	// Removing again is a no-op.
	if err := store.RemoveParticipant(ctx, "s1", "bob"); err != nil {
		t.Fatalf("repeat remove participant: %v", err)
	}
}

func testSessionsIsolated(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	join(t, store, "s2", "bob")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	if err := store.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clear session: %v", err)
	}

	s2 := readState(t, store, "s2")
	if s2.Owner != "bob" || !s2.HasParticipant("bob") {
		t.Fatalf("expected s2 untouched, got %+v", s2)
	}
}

func testParticipantOrdering(t *testing.T, store storage.Store) {
	join(t, store, "s1", "zed")
	join(t, store, "s1", "Alice")
	join(t, store, "s1", "bob")

	snap := readState(t, store, "s1")
	if !reflect.DeepEqual(snap.Participants, []string{"Alice", "bob", "zed"}) {
		t.Fatalf("expected case-insensitive ordering, got %v", snap.Participants)
	}
}

func testSnapshotEncoding(t *testing.T, store storage.Store) {
	ctx := context.Background()
	join(t, store, "s1", "alice")
	join(t, store, "s1", "bob")
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	snap := readState(t, store, "s1")
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	want := `{"owner":"alice","participants":["alice","bob"],"boards":{"alice":{"Opener":"Horizon"},"bob":{}}}`
	if string(payload) != want {
		t.Fatalf("expected canonical encoding\nwant %s\ngot  %s", want, payload)
	}
}
