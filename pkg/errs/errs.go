package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the store taxonomy. Callers discriminate with
// errors.Is; wrapped variants keep the chain intact.
var (
	// ErrNotFound signals an absent entity id.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a duplicate-creation race that is surfaced to the
	// caller rather than auto-resolved.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized signals a failed credential verification before a
	// sensitive mutation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransientIO signals a connectivity failure talking to the durable
	// or blob store. The caller decides whether to retry.
	ErrTransientIO = errors.New("transient i/o error")
)

// ValidationError reports an empty or malformed required field. Validation
// errors are returned to the immediate caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// IndexOutOfRangeError reports an edit or reaction targeting a post index
// outside the existing sequence.
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("post index %d out of range (len %d)", e.Index, e.Len)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIndexOutOfRange reports whether err is an IndexOutOfRangeError.
func IsIndexOutOfRange(err error) bool {
	var ie *IndexOutOfRangeError
	return errors.As(err, &ie)
}
