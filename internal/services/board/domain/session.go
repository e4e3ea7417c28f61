package domain

import (
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
)

const (
	maxSessionIDRunes = 128
	maxNameRunes      = 64
	maxValueRunes     = 200
)

// Snapshot is the full observable state of one session.
//
// Boards holds one entry per known participant, including participants with
// no picks yet (an empty map, never nil). A board never stores an empty
// value; absence of a slot key means "no pick for this slot".
type Snapshot struct {
	Owner        string                       `json:"owner"`
	Participants []string                     `json:"participants"`
	Boards       map[string]map[string]string `json:"boards"`
}

// EmptySnapshot returns the state of a session nobody has joined yet.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Participants: []string{},
		Boards:       map[string]map[string]string{},
	}
}

// Clone returns a deep copy so callers can hand snapshots across goroutine
// boundaries without sharing mutable maps.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Owner:        s.Owner,
		Participants: make([]string, len(s.Participants)),
		Boards:       make(map[string]map[string]string, len(s.Boards)),
	}
	copy(out.Participants, s.Participants)
	for name, board := range s.Boards {
		picks := make(map[string]string, len(board))
		for slot, value := range board {
			picks[slot] = value
		}
		out.Boards[name] = picks
	}
	return out
}

// HasParticipant reports whether name is a current member of the session.
func (s Snapshot) HasParticipant(name string) bool {
	for _, participant := range s.Participants {
		if participant == name {
			return true
		}
	}
	return false
}

// SortParticipants orders display names case-insensitively, with a byte-wise
// tiebreak so equal-fold names still sort deterministically.
func SortParticipants(names []string) {
	sort.Slice(names, func(i, j int) bool {
		left := strings.ToLower(names[i])
		right := strings.ToLower(names[j])
		if left == right {
			return names[i] < names[j]
		}
		return left < right
	})
}

// NormalizeSessionID trims and validates an opaque session identifier.
// Identifiers are restricted to the URL-safe unreserved charset so they can
// travel in paths and query strings without further escaping.
func NormalizeSessionID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperrors.New(apperrors.CodeSessionIDEmpty, "session id is required")
	}
	if utf8.RuneCountInString(id) > maxSessionIDRunes {
		return "", apperrors.New(apperrors.CodeSessionIDInvalid, "session id is too long")
	}
	for _, r := range id {
		if !isURLSafe(r) {
			return "", apperrors.WithMetadata(
				apperrors.CodeSessionIDInvalid,
				"session id contains characters outside the URL-safe set",
				map[string]string{"session_id": id},
			)
		}
	}
	return id, nil
}

// NormalizeName trims and validates a participant display name.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.New(apperrors.CodeParticipantNameEmpty, "participant name is required")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return "", apperrors.New(apperrors.CodeParticipantNameTooLong, "participant name is too long")
	}
	return name, nil
}

// NormalizeValue trims a pick value. An empty result is not an error here:
// callers treat it as a delete of the slot.
func NormalizeValue(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) > maxValueRunes {
		return "", apperrors.New(apperrors.CodePickValueTooLong, "pick value is too long")
	}
	return value, nil
}

func isURLSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '.' || r == '_' || r == '~':
		return true
	default:
		return false
	}
}
