// Package memory provides the volatile in-memory board storage backend.
//
// It is the baseline backend for single-process deployments that accept
// losing boards on restart, and the reference implementation the durable
// backends are held against in the conformance suite.
package memory

import (
	"context"
	"strings"
	"sync"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/domain"
)

// Store keeps session boards in process memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*record
}

type record struct {
	owner     string
	joinOrder []string
	members   map[string]struct{}
	picks     map[string]map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*record)}
}

// Close is a no-op; memory stores hold no external resources.
func (s *Store) Close() error {
	return nil
}

// EnsureSession creates a session record if absent.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionLocked(sessionID)
	return nil
}

// EnsureParticipant registers a participant if absent.
func (s *Store) EnsureParticipant(ctx context.Context, sessionID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	name, err = requireName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.sessionLocked(sessionID)
	if _, ok := rec.members[name]; !ok {
		rec.members[name] = struct{}{}
		rec.joinOrder = append(rec.joinOrder, name)
	}
	return nil
}

// AssignOwnerIfAbsent sets the owner only when currently unset. The store
// mutex gives the compare-and-set its atomicity.
func (s *Store) AssignOwnerIfAbsent(ctx context.Context, sessionID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	name, err = requireName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.sessionLocked(sessionID)
	if rec.owner == "" {
		rec.owner = name
	}
	return nil
}

// UpsertPick creates or overwrites one pick.
func (s *Store) UpsertPick(ctx context.Context, sessionID, participant, slot, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	participant, err = requireName(participant)
	if err != nil {
		return err
	}
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return apperrors.New(apperrors.CodeSlotUnknown, "slot name is required")
	}
	if strings.TrimSpace(value) == "" {
		return apperrors.New(apperrors.CodePickValueEmpty, "pick value must be non-empty; delete the slot instead")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.sessionLocked(sessionID)
	board := rec.picks[participant]
	if board == nil {
		board = make(map[string]string)
		rec.picks[participant] = board
	}
	board[slot] = value
	return nil
}

// DeletePick removes one pick; deleting an absent pick is a no-op.
func (s *Store) DeletePick(ctx context.Context, sessionID, participant, slot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	participant, err = requireName(participant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if board, ok := rec.picks[participant]; ok {
		delete(board, strings.TrimSpace(slot))
	}
	return nil
}

// ClearBoard removes all picks for one participant, preserving membership.
func (s *Store) ClearBoard(ctx context.Context, sessionID, participant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	participant, err = requireName(participant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		delete(rec.picks, participant)
	}
	return nil
}

// ClearSession removes every pick in the session, preserving membership.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.picks = make(map[string]map[string]string)
	}
	return nil
}

// RemoveParticipant drops board and membership together.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, participant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return err
	}
	participant, err = requireName(participant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if _, ok := rec.members[participant]; ok {
		delete(rec.members, participant)
		kept := rec.joinOrder[:0]
		for _, name := range rec.joinOrder {
			if name != participant {
				kept = append(kept, name)
			}
		}
		rec.joinOrder = kept
	}
	delete(rec.picks, participant)
	return nil
}

// ReadState returns a deep copy of the session's current state.
func (s *Store) ReadState(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	sessionID, err := requireID(sessionID, "session id is required")
	if err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.EmptySnapshot(), nil
	}

	snap := domain.Snapshot{
		Owner:        rec.owner,
		Participants: make([]string, 0, len(rec.members)),
		Boards:       make(map[string]map[string]string, len(rec.members)),
	}
	for name := range rec.members {
		snap.Participants = append(snap.Participants, name)
		board := make(map[string]string, len(rec.picks[name]))
		for slot, value := range rec.picks[name] {
			board[slot] = value
		}
		snap.Boards[name] = board
	}
	domain.SortParticipants(snap.Participants)
	return snap, nil
}

func (s *Store) sessionLocked(sessionID string) *record {
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &record{
			members: make(map[string]struct{}),
			picks:   make(map[string]map[string]string),
		}
		s.sessions[sessionID] = rec
	}
	return rec
}

func requireID(raw, message string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", apperrors.New(apperrors.CodeSessionIDEmpty, message)
	}
	return value, nil
}

func requireName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.New(apperrors.CodeParticipantNameEmpty, "participant name is required")
	}
	return name, nil
}
