// Package errors provides structured error handling for board mutations.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionIDEmpty   Code = "SESSION_ID_EMPTY"
	CodeSessionIDInvalid Code = "SESSION_ID_INVALID"

	// Participant errors
	CodeParticipantNameEmpty   Code = "PARTICIPANT_NAME_EMPTY"
	CodeParticipantNameTooLong Code = "PARTICIPANT_NAME_TOO_LONG"
	CodeParticipantRequired    Code = "PARTICIPANT_REQUIRED"

	// Pick errors
	CodeSlotUnknown      Code = "SLOT_UNKNOWN"
	CodePickValueEmpty   Code = "PICK_VALUE_EMPTY"
	CodePickValueTooLong Code = "PICK_VALUE_TOO_LONG"

	// Authorization errors
	CodeBoardWriteDenied    Code = "BOARD_WRITE_DENIED"
	CodeOwnerActionRequired Code = "OWNER_ACTION_REQUIRED"

	// Storage errors
	CodeStorageFailure Code = "STORAGE_FAILURE"
)

// Kind groups codes by how callers should treat the failure.
type Kind int

const (
	// KindUnknown covers errors with no recognized code.
	KindUnknown Kind = iota
	// KindValidation covers malformed or out-of-catalog input, rejected
	// before any storage call.
	KindValidation
	// KindAuthorization covers callers acting outside their board or role.
	KindAuthorization
	// KindStorage covers backend I/O failures and timeouts.
	KindStorage
)

// Kind reports the failure class for a code.
func (c Code) Kind() Kind {
	switch c {
	case CodeSessionIDEmpty, CodeSessionIDInvalid,
		CodeParticipantNameEmpty, CodeParticipantNameTooLong,
		CodeSlotUnknown, CodePickValueEmpty, CodePickValueTooLong:
		return KindValidation
	case CodeBoardWriteDenied, CodeOwnerActionRequired, CodeParticipantRequired:
		return KindAuthorization
	case CodeStorageFailure:
		return KindStorage
	default:
		return KindUnknown
	}
}
