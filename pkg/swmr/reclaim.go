package swmr

// reclaimRecord is one pending release of shadow-file storage: the
// shadow range superseded at writer tick Tick, to be handed back to
// the shadow-file allocator once MaxLag ticks have passed.
type reclaimRecord struct {
	Offset uint64
	Length uint32
	Tick   uint64
}

// reclaimQueue is the deferred-reclamation FIFO. New records are pushed
// at the head; release walks from the tail, so records are always
// released oldest-deferred-first. records[0] is the tail (oldest); the
// last element is the head (most recently deferred).
//
// A slice-backed FIFO is sufficient here since nothing needs removal by
// identity mid-queue — only head-push and tail-release are ever used.
type reclaimQueue struct {
	records []reclaimRecord
}

// newReclaimQueue returns an empty deferred-reclamation queue.
func newReclaimQueue() *reclaimQueue {
	return &reclaimQueue{}
}

// Defer inserts a new record at the head of the queue: the shadow range
// [offset, offset+length) superseded at tick, not reusable until
// tick+max_lag has passed.
func (q *reclaimQueue) Defer(offset uint64, length uint32, tick uint64) {
	q.records = append(q.records, reclaimRecord{Offset: offset, Length: length, Tick: tick})
}

// Len returns the number of pending records.
func (q *reclaimQueue) Len() int { return len(q.records) }

// Snapshot returns the pending records, tail (oldest) first.
func (q *reclaimQueue) Snapshot() []reclaimRecord {
	out := make([]reclaimRecord, len(q.records))
	copy(out, q.records)
	return out
}

// Release walks the queue from the tail, freeing any record whose
// tick_at_deferral + max_lag < currentTick, and stops at the first
// record that is not yet due — records are deferred in non-decreasing
// tick order, so nothing past that point can be due either. If
// currentTick <= maxLag, nothing can possibly be due yet and the walk is
// skipped entirely. Returns the number of records released.
func (q *reclaimQueue) Release(currentTick, maxLag uint64, free func(offset uint64, length uint32)) int {
	if currentTick <= maxLag {
		return 0
	}

	released := 0
	for len(q.records) > 0 {
		r := q.records[0]
		if r.Tick+maxLag >= currentTick {
			break
		}
		free(r.Offset, r.Length)
		q.records = q.records[1:]
		released++
	}
	return released
}
