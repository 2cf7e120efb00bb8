package swmr

// External collaborators consumed by the core. The core never
// implements these directly: a host embedding this package wires in
// its own page buffer and metadata-object cache; shadowfile.go
// supplies a default FileDriver and pkg/pagealloc a default
// ShadowAllocator, suitable for standalone use and for the test suite.

// ReconcileCounts reports how a PageBuffer's tick-list reconciled
// against the index during a writer EOT.
type ReconcileCounts struct {
	Added                int
	Modified             int
	NotInTickList        int
	NotInTickListFlushed int
}

// PageBuffer is the writer-side page cache external collaborator.
// Implementations own the decision of when a page becomes dirty; the
// core only drives the operations below during Writer.RunEOT.
type PageBuffer interface {
	// SetTick informs the page buffer of the writer's current tick,
	// called once at writer init and after every EOT.
	SetTick(tick uint64)

	// FlushRawData flushes raw-data caches and releases file-space
	// aggregators. Only called when the writer's Config.FlushRawData
	// is set.
	FlushRawData() error

	// UpdateIndex reconciles the buffer's tick-list of dirtied pages
	// against idx, upserting entries for added/modified pages. Added
	// entries must have EntryPtr set to the page's yet-unflushed image;
	// modified entries may either set EntryPtr (new image pending flush)
	// or leave it nil if the image was already placed. Returns counts
	// for diagnostics.
	UpdateIndex(idx *IndexStore) (ReconcileCounts, error)

	// ReleaseTickList discards the current tick's dirty-page
	// bookkeeping, called after the shadow file has been updated.
	ReleaseTickList()

	// ReleaseDelayedWrites releases any pending delayed write whose
	// deadline is now <= currentTick.
	ReleaseDelayedWrites(currentTick uint64)

	// RemoveEntry evicts the page at the given primary-file byte offset
	// from the page buffer.
	RemoveEntry(addr uint64)

	// DelayedWriteListLen reports the number of pending delayed writes,
	// used by the flush/close drain loop.
	DelayedWriteListLen() int
}

// MetadataCache is the metadata-object cache external collaborator.
type MetadataCache interface {
	// Flush writes all dirty metadata-cache entries into the page
	// buffer.
	Flush() error

	// EvictOrRefreshAllEntriesInPage evicts or refreshes every cached
	// object living on logical page p, observing the writer/reader tick
	// supplied.
	EvictOrRefreshAllEntriesInPage(p uint32, tick uint64) error
}

// FileDriver is the shadow-file raw I/O external collaborator. It
// knows nothing about headers, index blocks or checksums — the core
// (format.go, writer.go, reader.go) owns encoding, decoding and the
// twin-tick torn-read check; FileDriver only moves bytes.
type FileDriver interface {
	// ReadAt reads length bytes starting at offset.
	ReadAt(offset uint64, length uint32) ([]byte, error)

	// WriteAt writes data starting at offset.
	WriteAt(offset uint64, data []byte) error

	// Sync commits pending writes to stable storage.
	Sync() error

	// Truncate sets the shadow file's size, growing or shrinking it.
	Truncate(size int64) error

	// Close releases the underlying file handle.
	Close() error

	// Remove deletes the shadow file from the filesystem. Called once,
	// by Writer.Close, after the terminal empty index+header has been
	// published and the handle closed.
	Remove() error
}

// ShadowAllocator is the shadow-file free-space manager external
// collaborator. Allocations are always page-aligned.
type ShadowAllocator interface {
	// Alloc reserves size contiguous bytes of shadow-file storage and
	// returns its byte offset. The allocator, not the core, decides
	// where free space lives; the core only asserts the returned
	// address is page-aligned.
	Alloc(size uint32) (addr uint64, err error)

	// Free returns a previously allocated range to the free-space pool.
	// Called only after the deferred-reclamation queue has aged a
	// record out.
	Free(addr uint64, size uint32) error

	// Close releases the allocator's resources.
	Close() error
}
