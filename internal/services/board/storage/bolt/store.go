// Package bolt provides the document-store board storage backend.
//
// Each session is one JSON document keyed by session id in a single bucket.
// BoltDB serializes write transactions, which gives every mutation in this
// package compare-and-set semantics for free.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/domain"
	"go.etcd.io/bbolt"
)

const sessionBucket = "board_sessions"

// Store provides a BoltDB-backed board store.
type Store struct {
	db *bbolt.DB
}

type sessionDoc struct {
	Owner        string                       `json:"owner"`
	Participants []string                     `json:"participants"`
	Picks        map[string]map[string]string `json:"picks"`
}

func newSessionDoc() *sessionDoc {
	return &sessionDoc{
		Participants: []string{},
		Picks:        map[string]map[string]string{},
	}
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSession writes an empty document if the session has none yet.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(*sessionDoc) error { return nil })
}

// EnsureParticipant registers a participant if absent.
func (s *Store) EnsureParticipant(ctx context.Context, sessionID, name string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	name, err = participantName(name)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		for _, existing := range doc.Participants {
			if existing == name {
				return nil
			}
		}
		doc.Participants = append(doc.Participants, name)
		return nil
	})
}

// AssignOwnerIfAbsent sets the owner only when unset; the single-writer
// update transaction makes this a compare-and-set.
func (s *Store) AssignOwnerIfAbsent(ctx context.Context, sessionID, name string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	name, err = participantName(name)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		if doc.Owner == "" {
			doc.Owner = name
		}
		return nil
	})
}

// UpsertPick creates or overwrites one pick inside the session document.
func (s *Store) UpsertPick(ctx context.Context, sessionID, participant, slot, value string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
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
	return s.update(sessionID, func(doc *sessionDoc) error {
		board := doc.Picks[participant]
		if board == nil {
			board = map[string]string{}
			doc.Picks[participant] = board
		}
		board[slot] = value
		return nil
	})
}

// DeletePick removes one pick; absent picks are a no-op.
func (s *Store) DeletePick(ctx context.Context, sessionID, participant, slot string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		if board, ok := doc.Picks[participant]; ok {
			delete(board, strings.TrimSpace(slot))
			if len(board) == 0 {
				delete(doc.Picks, participant)
			}
		}
		return nil
	})
}

// ClearBoard drops one participant's picks, preserving membership.
func (s *Store) ClearBoard(ctx context.Context, sessionID, participant string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		delete(doc.Picks, participant)
		return nil
	})
}

// ClearSession drops every pick in the session, preserving membership.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		doc.Picks = map[string]map[string]string{}
		return nil
	})
}

// RemoveParticipant drops board and membership together.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, participant string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}
	return s.update(sessionID, func(doc *sessionDoc) error {
		kept := doc.Participants[:0]
		for _, name := range doc.Participants {
			if name != participant {
				kept = append(kept, name)
			}
		}
		doc.Participants = kept
		delete(doc.Picks, participant)
		return nil
	})
}

// ReadState decodes the session document into a snapshot.
func (s *Store) ReadState(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.EmptySnapshot()
	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		payload := bucket.Get([]byte(sessionID))
		if payload == nil {
			return nil
		}
		var doc sessionDoc
		if err := json.Unmarshal(payload, &doc); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		snap.Owner = doc.Owner
		for _, name := range doc.Participants {
			snap.Participants = append(snap.Participants, name)
			board := make(map[string]string, len(doc.Picks[name]))
			for slot, value := range doc.Picks[name] {
				board[slot] = value
			}
			snap.Boards[name] = board
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	domain.SortParticipants(snap.Participants)
	return snap, nil
}

// update loads the session document, applies mutate, and writes it back in
// one bolt transaction.
func (s *Store) update(sessionID string, mutate func(*sessionDoc) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}

		doc := newSessionDoc()
		if payload := bucket.Get([]byte(sessionID)); payload != nil {
			if err := json.Unmarshal(payload, doc); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
		}

		if err := mutate(doc); err != nil {
			return err
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return bucket.Put([]byte(sessionID), payload)
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		if err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		return nil
	})
}

func (s *Store) ready(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", apperrors.New(apperrors.CodeSessionIDEmpty, "session id is required")
	}
	return sessionID, nil
}

func participantName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.New(apperrors.CodeParticipantNameEmpty, "participant name is required")
	}
	return name, nil
}
