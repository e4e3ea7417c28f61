package server

import (
	"context"
	"sync"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/domain"
	"github.com/opensetlist/setboard/internal/services/board/storage"
)

// Session is the aggregate for one collaborative board.
//
// Its in-memory snapshot is a cache of the storage backend's authoritative
// state, rebuilt after every successful write. The aggregate never holds a
// lock across storage I/O: conflicting writes to the same key are resolved
// by the backend as last-write-wins, and the follow-up read reflects
// whichever write the backend committed last.
type Session struct {
	id    string
	store storage.Store

	mu       sync.Mutex
	snapshot domain.Snapshot
	loaded   bool
}

func newSession(id string, store storage.Store) *Session {
	return &Session{id: id, store: store}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current snapshot, loading it from storage on first use.
func (s *Session) State(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	if s.loaded {
		snap := s.snapshot.Clone()
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()
	return s.refresh(ctx)
}

// refresh rebuilds the cached snapshot from the authoritative store read.
func (s *Session) refresh(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.store.ReadState(ctx, s.id)
	if err != nil {
		return domain.Snapshot{}, storeFailure("read session state", err)
	}

	s.mu.Lock()
	s.snapshot = snap.Clone()
	s.loaded = true
	s.mu.Unlock()
	return snap, nil
}

// Join registers a participant, assigning ownership to the first joiner.
// Joining is idempotent: a reconnect with a known name keeps the existing
// board and never reassigns ownership.
func (s *Session) Join(ctx context.Context, name string) (domain.Snapshot, error) {
	if err := s.store.EnsureSession(ctx, s.id); err != nil {
		return domain.Snapshot{}, storeFailure("ensure session", err)
	}
	if err := s.store.EnsureParticipant(ctx, s.id, name); err != nil {
		return domain.Snapshot{}, storeFailure("ensure participant", err)
	}
	if err := s.store.AssignOwnerIfAbsent(ctx, s.id, name); err != nil {
		return domain.Snapshot{}, storeFailure("assign owner", err)
	}
	return s.refresh(ctx)
}

// SetPick writes one slot on the target's board. Participants may only
// write their own board; an empty value is a delete, not an error.
func (s *Session) SetPick(ctx context.Context, caller, target, slot, value string) (domain.Snapshot, error) {
	if caller != target {
		return domain.Snapshot{}, apperrors.WithMetadata(
			apperrors.CodeBoardWriteDenied,
			"participants may only fill their own board",
			map[string]string{"caller": caller, "target": target},
		)
	}
	if value == "" {
		return s.DeletePick(ctx, caller, target, slot)
	}

	state, err := s.State(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !state.HasParticipant(caller) {
		return domain.Snapshot{}, apperrors.New(apperrors.CodeParticipantRequired, "join the session before picking")
	}

	if err := s.store.UpsertPick(ctx, s.id, target, slot, value); err != nil {
		return domain.Snapshot{}, storeFailure("upsert pick", err)
	}
	return s.refresh(ctx)
}

// DeletePick removes one slot from the target's board. The session owner
// may delete any single entry; everyone else only their own.
func (s *Session) DeletePick(ctx context.Context, caller, target, slot string) (domain.Snapshot, error) {
	state, err := s.State(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !state.HasParticipant(caller) {
		return domain.Snapshot{}, apperrors.New(apperrors.CodeParticipantRequired, "join the session before editing picks")
	}
	if caller != target && caller != state.Owner {
		return domain.Snapshot{}, apperrors.WithMetadata(
			apperrors.CodeBoardWriteDenied,
			"only the pick's owner or the session owner may delete it",
			map[string]string{"caller": caller, "target": target},
		)
	}

	if err := s.store.DeletePick(ctx, s.id, target, slot); err != nil {
		return domain.Snapshot{}, storeFailure("delete pick", err)
	}
	return s.refresh(ctx)
}

// DeleteParticipantBoard removes the target's membership and board. This is
// an owner-only action.
func (s *Session) DeleteParticipantBoard(ctx context.Context, caller, target string) (domain.Snapshot, error) {
	state, err := s.State(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if caller != state.Owner {
		return domain.Snapshot{}, apperrors.WithMetadata(
			apperrors.CodeOwnerActionRequired,
			"only the session owner may delete a participant's board",
			map[string]string{"caller": caller, "target": target},
		)
	}

	if err := s.store.RemoveParticipant(ctx, s.id, target); err != nil {
		return domain.Snapshot{}, storeFailure("remove participant", err)
	}
	return s.refresh(ctx)
}

// ClearAll wipes every pick in the session while keeping membership. Any
// current participant may trigger it: the board is shared room state, and
// clearing it is a deliberately unscoped group action.
func (s *Session) ClearAll(ctx context.Context, caller string) (domain.Snapshot, error) {
	state, err := s.State(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !state.HasParticipant(caller) {
		return domain.Snapshot{}, apperrors.New(apperrors.CodeParticipantRequired, "join the session before clearing it")
	}

	if err := s.store.ClearSession(ctx, s.id); err != nil {
		return domain.Snapshot{}, storeFailure("clear session", err)
	}
	return s.refresh(ctx)
}

// storeFailure classifies backend errors, preserving structured validation
// errors the backend already raised.
func storeFailure(op string, err error) error {
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStorageFailure, op, err)
}
