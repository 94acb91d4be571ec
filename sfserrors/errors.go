// Package sfserrors defines the sentinel error values returned across the
// SFS API, following the same shape as a standard errno: a small fixed set of
// named conditions that callers can compare against with errors.Is.
package sfserrors

import "fmt"

// SFSError is a sentinel error value. It's a string so that the zero value
// and equality comparisons behave exactly like the constants below.
type SFSError string

func (e SFSError) Error() string {
	return string(e)
}

// WithMessage returns a new error that prints as "<e>: <message>" but still
// compares equal to e via errors.Is.
func (e SFSError) WithMessage(message string) error {
	return &wrappedError{sentinel: e, message: fmt.Sprintf("%s: %s", e, message)}
}

// Wrap returns a new error that prints as "<e>: <err>" and unwraps to both e
// and err.
func (e SFSError) Wrap(err error) error {
	return &wrappedError{sentinel: e, message: fmt.Sprintf("%s: %s", e, err), cause: err}
}

type wrappedError struct {
	sentinel SFSError
	message  string
	cause    error
}

func (e *wrappedError) Error() string {
	return e.message
}

// Is lets errors.Is(err, ErrXxx) succeed even through WithMessage/Wrap.
func (e *wrappedError) Is(target error) bool {
	return e.sentinel == target
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *wrappedError) Unwrap() error {
	return e.cause
}

// Sentinel error kinds returned across the API.
const (
	// ErrNotFound is returned when a directory lookup misses (GetFileSize,
	// Remove).
	ErrNotFound = SFSError("no such file")
	// ErrInvalidHandle is returned when a file handle is out of range or its
	// open-file slot is invalid (Close, Seek).
	ErrInvalidHandle = SFSError("invalid file handle")
	// ErrNoSpace is returned when there's no free inode, no free data block,
	// or a file has reached its maximum length. Surfaces as a short write or
	// an Open failure.
	ErrNoSpace = SFSError("no space left on device")
	// ErrNameTooLong is returned when a filename does not fit the 20-byte
	// on-disk field together with its NUL terminator (more than 19 bytes).
	ErrNameTooLong = SFSError("file name too long")
	// ErrInvalidArgument is returned by Seek with a location outside
	// [0, size], and for an out-of-range block, bitmap or inode index.
	ErrInvalidArgument = SFSError("invalid argument")
	// ErrIO is returned when the underlying block device fails.
	ErrIO = SFSError("I/O error")
	// ErrCorrupted is returned when on-disk structures fail a sanity check:
	// a bad magic number or bitmap byte during mount, or inconsistent
	// counters and pointers found by CheckInvariants.
	ErrCorrupted = SFSError("file system structure corrupted")
)
