package result

import "errors"

// Error kinds shared by the store, segment and facade layers. Components
// wrap these with %w and callers match with errors.Is or Result.Is.
var (
	// ErrNotFound: key or segment name does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: key or segment name is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrPayloadTooLarge: header plus encoded payload exceeds the segment size.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrCorruptHeader: the segment header is unreadable or inconsistent.
	ErrCorruptHeader = errors.New("corrupt header")
	// ErrUnsupportedFormat: the serializer format identifier is unknown.
	ErrUnsupportedFormat = errors.New("unsupported serializer format")
	// ErrLockMisuse: a lock-requiring operation was invoked unguarded.
	ErrLockMisuse = errors.New("lock misuse")
	// ErrCancelled: the operation was cancelled by the caller.
	ErrCancelled = errors.New("cancelled")
)
