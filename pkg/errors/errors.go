// Package errors provides error wrapping utilities and the failure taxonomy
// used across the flashing pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Kind classifies a pipeline failure. Every error surfaced to a caller of
// the flasher carries exactly one Kind.
type Kind int

const (
	// Validation means the source image is unusable: missing, unreadable,
	// empty, oversized, or truncated.
	Validation Kind = iota
	// TargetRejected means the safety guard vetoed the target device.
	TargetRejected
	// UnmountFailed means mounts remained on the target after a release
	// attempt.
	UnmountFailed
	// WriteFailed covers I/O errors, out-of-space, subprocess failures and
	// permission problems during the copy.
	WriteFailed
	// VerificationFailed means the written device does not match the source.
	VerificationFailed
	// Cancelled means the user aborted the operation.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case TargetRejected:
		return "target_rejected"
	case UnmountFailed:
		return "unmount_failed"
	case WriteFailed:
		return "write_failed"
	case VerificationFailed:
		return "verification_failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// FlashError is a Kind-tagged error. It wraps an optional cause so callers
// can use errors.Is/errors.As on the chain.
type FlashError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *FlashError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *FlashError) Unwrap() error { return e.Err }

// New creates a FlashError with the given kind and message.
func New(kind Kind, msg string) *FlashError {
	return &FlashError{Kind: kind, Msg: msg}
}

// Newf creates a FlashError with a formatted message.
func Newf(kind Kind, format string, args ...any) *FlashError {
	return &FlashError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapKind wraps a cause with a kind and context message. Returns nil when
// err is nil.
func WrapKind(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &FlashError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. The second return is false
// when no FlashError is present.
func KindOf(err error) (Kind, bool) {
	var fe *FlashError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsKind reports whether the error chain contains a FlashError of the given
// kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
