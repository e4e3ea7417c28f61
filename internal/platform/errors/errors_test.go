package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeSlotUnknown, "slot is not in the catalog")
	if !stderrors.Is(err, New(CodeSlotUnknown, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodePickValueEmpty, "slot is not in the catalog")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeStorageFailure, "upsert pick", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestKindOfClassifiesWrappedChains(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", New(CodeSessionIDEmpty, "session id is required"), KindValidation},
		{"authorization", New(CodeOwnerActionRequired, "owner only"), KindAuthorization},
		{"storage", Wrap(CodeStorageFailure, "read state", stderrors.New("timeout")), KindStorage},
		{"wrapped", fmt.Errorf("gateway: %w", New(CodeBoardWriteDenied, "not your board")), KindAuthorization},
		{"plain", stderrors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("expected kind %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCodeOfExtractsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeParticipantRequired, "join first"))
	if got := CodeOf(err); got != CodeParticipantRequired {
		t.Fatalf("expected participant required code, got %q", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %q", got)
	}
}
