package swmr

import "errors"

// Sentinel errors returned by core operations. Callers classify with
// errors.Is; wrapped context is added with fmt.Errorf("%w: ...").
var (
	// ErrConfig indicates an invalid configuration was rejected at Open.
	ErrConfig = errors.New("swmr: invalid configuration")

	// ErrClosed indicates an operation on a writer or reader that has
	// already been closed.
	ErrClosed = errors.New("swmr: closed")

	// ErrIO indicates a shadow-file I/O failure (seek/read/write/truncate).
	// Fatal for the file handle it occurred on.
	ErrIO = errors.New("swmr: shadow-file I/O failure")

	// ErrInvariant indicates an internal consistency violation: duplicate
	// logical page in an index, an index not sorted ascending, a
	// delayed-write deadline out of range, or a writer-side entry whose
	// entry_ptr was not cleared by end of EOT. These are programming
	// errors in a collaborator, not recoverable conditions.
	ErrInvariant = errors.New("swmr: invariant violation")

	// ErrResourceExhausted indicates an allocation failure (shadow-file
	// space or in-memory index growth) during an EOT. The tick is not
	// advanced; the caller may retry on the next scheduled EOT.
	ErrResourceExhausted = errors.New("swmr: resource exhausted")

	// ErrBusy indicates the single-writer lock is already held by
	// another process.
	ErrBusy = errors.New("swmr: writer busy")

	// ErrNotWriter is returned by writer-only operations called on a
	// reader handle, and vice versa.
	ErrNotWriter = errors.New("swmr: not a writer handle")
)
