// Package sqlite provides the relational board storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	sqlitemigrate "github.com/opensetlist/setboard/internal/platform/storage/sqlitemigrate"
	"github.com/opensetlist/setboard/internal/services/board/domain"
	"github.com/opensetlist/setboard/internal/services/board/storage/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// Store persists session boards in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite board store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// EnsureSession inserts a session row if absent; existing rows are untouched.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO sessions (id, owner, created_at) VALUES (?, '', ?)`,
		sessionID,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// EnsureParticipant inserts a membership row if absent.
func (s *Store) EnsureParticipant(ctx context.Context, sessionID, name string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	name, err = participantName(name)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO participants (session_id, name, joined_at) VALUES (?, ?, ?)`,
		sessionID,
		name,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ensure participant: %w", err)
	}
	return nil
}

// AssignOwnerIfAbsent sets the owner column only when it is still empty,
// creating the session row when it does not exist yet. The guarded upsert is
// the compare-and-set: concurrent callers race on one statement and exactly
// one of them matches the empty-owner predicate.
func (s *Store) AssignOwnerIfAbsent(ctx context.Context, sessionID, name string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	name, err = participantName(name)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, owner, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET owner = excluded.owner WHERE sessions.owner = ''`,
		sessionID,
		name,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("assign owner: %w", err)
	}
	return nil
}

// UpsertPick creates or overwrites one pick row.
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

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO picks (session_id, participant, slot, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, participant, slot)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID,
		participant,
		slot,
		value,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert pick: %w", err)
	}
	return nil
}

// DeletePick removes one pick row; deleting an absent row is a no-op.
func (s *Store) DeletePick(ctx context.Context, sessionID, participant, slot string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM picks WHERE session_id = ? AND participant = ? AND slot = ?`,
		sessionID,
		participant,
		strings.TrimSpace(slot),
	)
	if err != nil {
		return fmt.Errorf("delete pick: %w", err)
	}
	return nil
}

// ClearBoard drops all pick rows for one participant.
func (s *Store) ClearBoard(ctx context.Context, sessionID, participant string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM picks WHERE session_id = ? AND participant = ?`,
		sessionID,
		participant,
	)
	if err != nil {
		return fmt.Errorf("clear board: %w", err)
	}
	return nil
}

// ClearSession drops every pick row in the session; membership rows stay.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM picks WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RemoveParticipant drops membership and board rows in one transaction.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, participant string) error {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err = participantName(participant)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove participant: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM picks WHERE session_id = ? AND participant = ?`,
		sessionID,
		participant,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("remove participant picks: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM participants WHERE session_id = ? AND name = ?`,
		sessionID,
		participant,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("remove participant membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove participant: %w", err)
	}
	return nil
}

// ReadState assembles the authoritative snapshot from the session,
// participant, and pick tables.
func (s *Store) ReadState(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sessionID, err := s.ready(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.EmptySnapshot()

	row := s.sqlDB.QueryRowContext(ctx, `SELECT owner FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&snap.Owner); err != nil && err != sql.ErrNoRows {
		return domain.Snapshot{}, fmt.Errorf("read session owner: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM participants WHERE session_id = ?`, sessionID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan participant: %w", err)
		}
		snap.Participants = append(snap.Participants, name)
		snap.Boards[name] = map[string]string{}
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate participants: %w", err)
	}

	pickRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT participant, slot, value FROM picks WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read picks: %w", err)
	}
	defer pickRows.Close()
	for pickRows.Next() {
		var participant, slot, value string
		if err := pickRows.Scan(&participant, &slot, &value); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan pick: %w", err)
		}
		board, ok := snap.Boards[participant]
		if !ok {
			// Pick rows for departed participants should not exist; skip
			// rather than resurrect membership.
			continue
		}
		board[slot] = value
	}
	if err := pickRows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate picks: %w", err)
	}

	domain.SortParticipants(snap.Participants)
	return snap, nil
}

func (s *Store) ready(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
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
