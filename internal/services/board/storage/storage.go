// Package storage defines the port a durable board backend must satisfy.
//
// Three interchangeable implementations exist: memory (volatile baseline),
// sqlite (relational), and bolt (document store). All of them must produce
// identical snapshots for the same mutation history; the storagetest
// package holds the conformance suite that keeps them honest.
//
// Slot legality is a gateway concern: backends receive catalog-validated
// slot names and only enforce the structural contract (non-empty ids and
// names, non-empty pick values).
package storage

import (
	"context"

	"github.com/opensetlist/setboard/internal/services/board/domain"
)

// Store persists session boards. All methods are safe for concurrent
// callers; conflicting writes to the same (session, participant, slot) key
// are serialized by the backend, last write wins.
type Store interface {
	// EnsureSession creates a durable session record if absent. It is
	// idempotent and never overwrites existing fields.
	EnsureSession(ctx context.Context, sessionID string) error

	// EnsureParticipant registers a participant if absent. Idempotent.
	EnsureParticipant(ctx context.Context, sessionID, name string) error

	// AssignOwnerIfAbsent sets the session owner only when currently unset,
	// with compare-and-set semantics: concurrent calls for the same session
	// yield exactly one owner.
	AssignOwnerIfAbsent(ctx context.Context, sessionID, name string) error

	// UpsertPick creates or overwrites one pick. Empty values are rejected;
	// callers route empties to DeletePick instead.
	UpsertPick(ctx context.Context, sessionID, participant, slot, value string) error

	// DeletePick removes one pick. Deleting an absent pick is a no-op.
	DeletePick(ctx context.Context, sessionID, participant, slot string) error

	// ClearBoard removes all picks for one participant, preserving
	// membership.
	ClearBoard(ctx context.Context, sessionID, participant string) error

	// ClearSession removes all picks for all participants, preserving
	// membership.
	ClearSession(ctx context.Context, sessionID string) error

	// RemoveParticipant removes board and membership together. Removing an
	// unknown participant is a no-op.
	RemoveParticipant(ctx context.Context, sessionID, participant string) error

	// ReadState returns the authoritative full state of a session, with
	// read-your-writes visibility. Absent sessions read as empty snapshots
	// because sessions exist implicitly on first reference.
	ReadState(ctx context.Context, sessionID string) (domain.Snapshot, error)

	// Close releases backend resources.
	Close() error
}
