package memory

import (
	"context"
	"testing"

	"github.com/opensetlist/setboard/internal/services/board/storage"
	"github.com/opensetlist/setboard/internal/services/board/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestReadStateCopiesBoards(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := store.EnsureParticipant(ctx, "s1", "alice"); err != nil {
		t.Fatalf("ensure participant: %v", err)
	}
	if err := store.UpsertPick(ctx, "s1", "alice", "Opener", "Horizon"); err != nil {
		t.Fatalf("upsert pick: %v", err)
	}

	snap, err := store.ReadState(ctx, "s1")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	snap.Boards["alice"]["Opener"] = "Mutated"

	again, err := store.ReadState(ctx, "s1")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if again.Boards["alice"]["Opener"] != "Horizon" {
		t.Fatal("expected snapshots to be independent copies")
	}
}

func TestCancelledContextIsRejected(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.EnsureSession(ctx, "s1"); err == nil {
		t.Fatal("expected cancelled context to be rejected")
	}
	if _, err := store.ReadState(ctx, "s1"); err == nil {
		t.Fatal("expected cancelled context to be rejected")
	}
}
