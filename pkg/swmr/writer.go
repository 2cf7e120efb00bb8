package swmr

import (
	"fmt"
	"sort"
	"time"
)

// Writer is the writer-side SWMR engine: the only process allowed to
// mutate a shadow file. A Writer owns the in-memory index, the deferred-
// reclamation queue, and the monotonic tick counter for one shadow file.
type Writer struct {
	cfg Config

	driver    FileDriver
	allocator ShadowAllocator
	pages     PageBuffer
	metadata  MetadataCache

	index   *IndexStore
	reclaim *reclaimQueue

	tick uint64

	// indexOffset is the current byte offset of the live index block in
	// the shadow file.
	indexOffset uint64

	endOfTick time.Time
	sched     *Scheduler
}

// OpenWriter creates (or re-initializes) a shadow file for writing. It
// assumes write-intent: callers must already hold whatever higher-level
// exclusivity guarantees a single writer.
func OpenWriter(cfg Config, driver FileDriver, allocator ShadowAllocator, pages PageBuffer, metadata MetadataCache, sched *Scheduler) (*Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		cfg:       cfg,
		driver:    driver,
		allocator: allocator,
		pages:     pages,
		metadata:  metadata,
		index:     newIndexStore(),
		reclaim:   newReclaimQueue(),
		tick:      1,
	}

	headerAddr, err := allocator.Alloc(cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("allocate header page: %w", err)
	}
	if headerAddr != 0 {
		return nil, fmt.Errorf("header page address %d != 0: %w", headerAddr, ErrInvariant)
	}

	indexAddr, err := allocator.Alloc(cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("allocate initial index region: %w", err)
	}
	if indexAddr != uint64(cfg.PageSize) {
		return nil, fmt.Errorf("initial index address %d != page_size %d: %w", indexAddr, cfg.PageSize, ErrInvariant)
	}
	w.indexOffset = indexAddr

	if err := w.driver.Truncate(int64(cfg.PagesReserved) * int64(cfg.PageSize)); err != nil {
		return nil, fmt.Errorf("truncate shadow file to reserved size: %w", err)
	}

	w.pages.SetTick(w.tick)

	// Publish an empty index+header immediately so a racing reader
	// attaching to an already-existing primary file finds a valid,
	// if empty, shadow file rather than all zero bytes.
	if err := w.publish(); err != nil {
		return nil, fmt.Errorf("publish initial index+header: %w", err)
	}

	w.endOfTick = time.Now().Add(w.cfg.tickDuration())
	w.sched = sched
	if sched != nil {
		sched.Register(w, roleWriter)
	}
	return w, nil
}

// Tick returns the writer's current tick T.
func (w *Writer) Tick() uint64 { return w.tick }

// EndOfTick returns the deadline by which RunEOT should next run.
func (w *Writer) EndOfTick() time.Time { return w.endOfTick }

// DelayUntil runs the delayed-write oracle for logical page p.
func (w *Writer) DelayUntil(p uint32) (uint64, error) {
	return delayUntil(w.index, p, w.tick, w.cfg.MaxLag)
}

// Index returns the writer's in-memory shadow index.
func (w *Writer) Index() *IndexStore { return w.index }

// ReclaimSnapshot returns the pending deferred-reclamation records,
// oldest-deferred first.
func (w *Writer) ReclaimSnapshot() []reclaimRecord { return w.reclaim.Snapshot() }

// RunEOT executes the writer's end-of-tick sequence. Steps are strictly
// ordered; none may be reordered or skipped.
func (w *Writer) RunEOT() error {
	// Step 1: flush raw-data caches and release file-space aggregators.
	if w.cfg.FlushRawData {
		if err := w.pages.FlushRawData(); err != nil {
			return fmt.Errorf("flush raw data: %w", err)
		}
	}

	// Step 2: flush the metadata cache into the page buffer.
	if w.metadata != nil {
		if err := w.metadata.Flush(); err != nil {
			return fmt.Errorf("flush metadata cache: %w", err)
		}
	}

	// Step 3: truncate the underlying file driver to its current logical size.
	if err := w.driver.Truncate(int64(w.cfg.PagesReserved) * int64(w.cfg.PageSize)); err != nil {
		return fmt.Errorf("truncate shadow file: %w", err)
	}

	// Step 4: index already created at OpenWriter; nothing to do here.

	// Step 5: reconcile the page buffer's tick-list against the index.
	if _, err := w.pages.UpdateIndex(w.index); err != nil {
		return fmt.Errorf("reconcile tick-list into index: %w", err)
	}

	// Step 6: update the shadow file.
	if err := w.updateShadowFile(); err != nil {
		return err
	}

	// Step 7: release the page-buffer tick-list.
	w.pages.ReleaseTickList()

	// Step 8: release any page-buffer delayed writes now past their deadline.
	w.pages.ReleaseDelayedWrites(w.tick)

	// Step 9: advance the tick and recompute the deadline. RunEOT does not
	// touch the scheduler; Scheduler.DispatchDue reinserts the writer after
	// RunEOT returns.
	w.tick++
	w.pages.SetTick(w.tick)
	w.endOfTick = time.Now().Add(w.cfg.tickDuration())

	return nil
}

// updateShadowFile flushes every dirty page's image to the shadow file,
// grows the index if needed, and publishes the result.
func (w *Writer) updateShadowFile() error {
	// (a) sort and assert strict ascending order.
	sort.Slice(w.index.entries, func(i, j int) bool { return w.index.entries[i].P < w.index.entries[j].P })
	if err := w.index.ValidateSorted(); err != nil {
		return err
	}

	// (b)-(d): flush every dirty entry's image to the shadow file.
	for i := range w.index.entries {
		e := &w.index.entries[i]
		if e.EntryPtr == nil {
			continue
		}

		if e.S != 0 {
			w.reclaim.Defer(uint64(e.S)*uint64(w.cfg.PageSize), e.Length, w.tick)
		}

		addr, err := w.allocator.Alloc(e.Length)
		if err != nil {
			return fmt.Errorf("allocate shadow range for page %d: %w", e.P, err)
		}
		if addr%uint64(w.cfg.PageSize) != 0 {
			return fmt.Errorf("allocator returned non-page-aligned address %d: %w", addr, ErrInvariant)
		}

		if err := w.driver.WriteAt(addr, e.EntryPtr); err != nil {
			return fmt.Errorf("write image for page %d: %w", e.P, err)
		}

		e.S = uint32(addr / uint64(w.cfg.PageSize))
		e.Chksum = imageChecksum(e.EntryPtr)
		e.EntryPtr = nil
	}

	// Every entry must now have a nil EntryPtr: invariant check.
	for i := range w.index.entries {
		if w.index.entries[i].EntryPtr != nil {
			return fmt.Errorf("entry for page %d still has a pending image at end of EOT: %w",
				w.index.entries[i].P, ErrInvariant)
		}
	}

	// The entries are already in the index here, so grow only once their
	// count exceeds the capacity.
	if uint64(w.index.Len()) > uint64(w.index.Capacity()) {
		if err := w.growIndex(); err != nil {
			return err
		}
	}

	// (e) encode and write the index block, then the header.
	if err := w.publish(); err != nil {
		return err
	}

	// (f) age the deferred-reclamation queue and free anything past max lag.
	w.reclaim.Release(w.tick, w.cfg.MaxLag, func(offset uint64, length uint32) {
		_ = w.allocator.Free(offset, length)
	})

	return nil
}

// growIndex doubles the index's capacity, allocates a fresh shadow-file
// region sized for the new capacity, and defers reclamation of the old
// region rather than freeing it immediately: a reader may still be
// reading through the old region under an earlier published header.
func (w *Writer) growIndex() error {
	oldCapacity, newCapacity := w.index.Grow()

	oldOffset := w.indexOffset
	oldSize := uint32(indexBlockSize(int(oldCapacity)))

	newAddr, err := w.allocator.Alloc(uint32(indexBlockSize(int(newCapacity))))
	if err != nil {
		return fmt.Errorf("allocate grown index region: %w", err)
	}
	if newAddr%uint64(w.cfg.PageSize) != 0 {
		return fmt.Errorf("allocator returned non-page-aligned index address %d: %w", newAddr, ErrInvariant)
	}

	w.indexOffset = newAddr
	w.reclaim.Defer(oldOffset, oldSize, w.tick)
	return nil
}

// publish encodes and writes the index block, then the header, in that
// order. The header is the publication barrier: a reader that sees a
// new header is guaranteed the index block it points to is already
// fully written.
func (w *Writer) publish() error {
	wireEntries := make([]wireEntry, len(w.index.entries))
	for i, e := range w.index.entries {
		wireEntries[i] = wireEntry{P: e.P, S: e.S, Length: e.Length, Chksum: e.Chksum}
	}

	block, err := encodeIndexBlock(w.tick, wireEntries)
	if err != nil {
		return fmt.Errorf("encode index block: %w", err)
	}
	if err := w.driver.WriteAt(w.indexOffset, block); err != nil {
		return fmt.Errorf("write index block: %w", err)
	}

	h := header{
		PageSize:    w.cfg.PageSize,
		Tick:        w.tick,
		IndexOffset: w.indexOffset,
		IndexLength: uint64(len(block)),
	}
	if err := w.driver.WriteAt(0, h.encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return w.driver.Sync()
}

// Flush drains the writer: one immediate EOT to clear the tick list,
// then repeated wait-a-tick loops until the page buffer's delayed-write
// list is empty.
func (w *Writer) Flush() error {
	if err := w.RunEOT(); err != nil {
		return err
	}

	for w.pages.DelayedWriteListLen() > 0 {
		time.Sleep(w.cfg.tickDuration())
		if err := w.RunEOT(); err != nil {
			return err
		}
	}

	return nil
}

// Close drains pending writes, publishes an empty terminal index+header,
// releases the shadow file handle and allocator, and unlinks the shadow
// file itself: a graceful writer close leaves no shadow file behind for
// a later OpenFile to stumble over or a reader to mistake for a live
// one.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	if w.sched != nil {
		w.sched.Unregister(w)
	}

	w.index = newIndexStore()
	w.tick++
	if err := w.publish(); err != nil {
		return fmt.Errorf("publish terminal empty index+header: %w", err)
	}

	if err := w.allocator.Close(); err != nil {
		return fmt.Errorf("close shadow allocator: %w", err)
	}

	if err := w.driver.Close(); err != nil {
		return fmt.Errorf("close shadow file handle: %w", err)
	}

	if err := w.driver.Remove(); err != nil {
		return fmt.Errorf("unlink shadow file: %w", err)
	}

	return nil
}
