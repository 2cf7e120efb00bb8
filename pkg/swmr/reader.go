package swmr

import (
	"fmt"
	"time"
)

// Reader is the reader-side SWMR engine: a read-only attachment to a
// shadow file that polls for new ticks and reconciles its caches against
// whatever index the writer most recently published.
type Reader struct {
	cfg Config

	driver   FileDriver
	pages    PageBuffer
	metadata MetadataCache

	tick uint64

	oldIndex *IndexStore
	newIndex *IndexStore

	endOfTick time.Time
	sched     *Scheduler
}

// OpenReader attaches to an existing shadow file for reading: it seeds
// its local tick and index from whatever the writer has already
// published.
func OpenReader(cfg Config, driver FileDriver, pages PageBuffer, metadata MetadataCache, sched *Scheduler) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Reader{
		cfg:      cfg,
		driver:   driver,
		pages:    pages,
		metadata: metadata,
		oldIndex: newIndexStore(),
	}

	tick, entries, ok, err := r.loadTickAndIndex()
	if err != nil {
		return nil, fmt.Errorf("seed reader from shadow file: %w", err)
	}
	if ok {
		r.tick = tick
		r.newIndex = indexStoreFromEntries(entries, uint32(len(entries)))
	} else {
		r.newIndex = newIndexStore()
	}

	r.endOfTick = time.Now().Add(r.cfg.tickDuration())
	r.sched = sched
	if sched != nil {
		sched.Register(r, roleReader)
	}
	return r, nil
}

// Close unregisters the reader from its scheduler and releases its file
// handle. It does not unlink the shadow file — only the writer owns that.
func (r *Reader) Close() error {
	if r.sched != nil {
		r.sched.Unregister(r)
	}
	return r.driver.Close()
}

// Tick returns the reader's current local tick.
func (r *Reader) Tick() uint64 { return r.tick }

// Index returns the index the reader currently believes reflects the
// writer's most recently published state.
func (r *Reader) Index() *IndexStore { return r.newIndex }

// EndOfTick returns the deadline by which RunEOT should next run.
func (r *Reader) EndOfTick() time.Time { return r.endOfTick }

// RunEOT executes the reader's EOT sequence.
func (r *Reader) RunEOT() error {
	// Step 1: poll for the current header tick; if unchanged, nothing to do.
	h, ok := r.readHeaderOnly()
	if !ok {
		r.rescheduleNoChange()
		return nil
	}
	if h.Tick == r.tick {
		r.rescheduleNoChange()
		return nil
	}

	// Step 2: swap the current index into the "old" slot (pointers only).
	r.oldIndex, r.newIndex = r.newIndex, r.oldIndex

	// Step 3: if the new-index slot is empty (first run), allocate it.
	if r.newIndex == nil {
		r.newIndex = newIndexStore()
	}

	// Step 4: load the new index, validating header/index/tick consistency.
	newTick, entries, ok, err := r.loadTickAndIndex()
	if err != nil {
		return fmt.Errorf("load new index: %w", err)
	}
	if !ok {
		// Torn read: abandon this tick, retry next time.
		r.oldIndex, r.newIndex = r.newIndex, r.oldIndex
		r.rescheduleNoChange()
		return nil
	}
	r.newIndex = indexStoreFromEntries(entries, uint32(len(entries)))

	// Step 5: diff old vs new via linear merge on P.
	changed := diffIndices(r.oldIndex, r.newIndex)

	// Step 6: remove_entry for every changed page, THEN evict-or-refresh.
	// Order matters: the metadata cache may re-read the page buffer
	// during refresh.
	for _, p := range changed {
		r.pages.RemoveEntry(uint64(p) * uint64(r.cfg.PageSize))
	}
	if r.metadata != nil {
		for _, p := range changed {
			if err := r.metadata.EvictOrRefreshAllEntriesInPage(p, newTick); err != nil {
				return fmt.Errorf("evict/refresh page %d: %w", p, err)
			}
		}
	}

	// Step 7: advance local tick; recompute deadline. Scheduler.DispatchDue
	// reinserts the reader after RunEOT returns.
	r.tick = newTick
	r.endOfTick = time.Now().Add(r.cfg.tickDuration())
	return nil
}

func (r *Reader) rescheduleNoChange() {
	r.endOfTick = time.Now().Add(r.cfg.tickDuration())
}

// readHeaderOnly reads and decodes just the header block.
func (r *Reader) readHeaderOnly() (header, bool) {
	buf, err := r.driver.ReadAt(0, headerSize)
	if err != nil {
		return header{}, false
	}
	return decodeHeader(buf)
}

// loadTickAndIndex performs the twin-tick check: read the header, then
// the index block it points to, and confirm header.tick == index.tick.
// Any structural problem or mismatch is reported as ok=false (a torn
// read), never as an error.
func (r *Reader) loadTickAndIndex() (tick uint64, entries []Entry, ok bool, err error) {
	h, ok := r.readHeaderOnly()
	if !ok {
		return 0, nil, false, nil
	}

	buf, readErr := r.driver.ReadAt(h.IndexOffset, uint32(h.IndexLength))
	if readErr != nil {
		return 0, nil, false, fmt.Errorf("read index block: %w", readErr)
	}

	indexTick, wireEntries, ok := decodeIndexBlock(buf)
	if !ok || indexTick != h.Tick {
		return 0, nil, false, nil
	}

	out := make([]Entry, len(wireEntries))
	for i, we := range wireEntries {
		out[i] = Entry{P: we.P, S: we.S, Length: we.Length, Chksum: we.Chksum}
	}
	return h.Tick, out, true, nil
}

// diffIndices merges old and new (both P-ordered) and returns the logical
// pages that changed: present in both with a differing S (updated),
// present only in old (removed). Pages present only in new (added)
// require no cache action.
func diffIndices(oldIdx, newIdx *IndexStore) []uint32 {
	var changed []uint32

	i, j := 0, 0
	for i < oldIdx.Len() && j < newIdx.Len() {
		o, n := oldIdx.At(i), newIdx.At(j)
		switch {
		case o.P == n.P:
			if o.S != n.S {
				changed = append(changed, o.P)
			}
			i++
			j++
		case o.P < n.P:
			// Only in old: removed.
			changed = append(changed, o.P)
			i++
		default:
			// Only in new: added, no cache action.
			j++
		}
	}
	for ; i < oldIdx.Len(); i++ {
		changed = append(changed, oldIdx.At(i).P)
	}

	return changed
}
