package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestCodeOfWrappedChain(t *testing.T) {
	base := NewNotFoundError("/tmp/missing.pdf")
	wrapped := fmt.Errorf("segment: %w", base)

	if got := CodeOf(wrapped); got != ErrorNotFound {
		t.Errorf("CodeOf() = %q, want %q", got, ErrorNotFound)
	}
	if !HasCode(wrapped, ErrorNotFound) {
		t.Errorf("HasCode() = false, want true")
	}
	if HasCode(nil, ErrorNotFound) {
		t.Errorf("HasCode(nil) = true, want false")
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Errorf("CodeOf(plain) should be empty")
	}
}

func TestIsFatal(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", NewNotFoundError("a.pdf"), true},
		{"type mismatch", NewTypeMismatchError("a.doc", ".doc", []string{".pdf"}), true},
		{"timeout", NewTimeoutError("a.pdf", 3, 20*time.Second, nil), true},
		{"job timeout", NewProcessingTimeoutError("job-1", time.Minute, nil), true},
		{"encoding", NewEncodingError("\xee", 0), false},
		{"empty set", NewEmptySetError("dictionaries", "/d"), false},
		{"index corruption", NewIndexCorruptionError(10, 5), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.want {
				t.Errorf("IsFatal() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestToMapIncludesDetailsAndCause(t *testing.T) {
	cause := stderrors.New("signal: killed")
	err := NewTimeoutError("book.pdf", 7, 20*time.Second, cause)

	m := err.ToMap()
	if m["error_code"] != string(ErrorTimeout) {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["page"] != 7 {
		t.Errorf("page = %v, want 7", m["page"])
	}
	if m["cause"] != "signal: killed" {
		t.Errorf("cause = %v", m["cause"])
	}
	if m["path"] != "book.pdf" {
		t.Errorf("path = %v", m["path"])
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("Unwrap should expose the cause")
	}
}
