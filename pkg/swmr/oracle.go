package swmr

import "fmt"

// delayUntil is the delayed-write oracle. Given the current index and
// tick T, it decides the tick until which a pending write to logical
// page p must be postponed, preserving the reader's bound of max_lag
// ticks of staleness.
func delayUntil(idx *IndexStore, p uint32, tick, maxLag uint64) (uint64, error) {
	var until uint64

	entry, found := idx.Find(p)
	switch {
	case !found:
		// A brand-new write is treated as having "appeared this tick" and
		// must age out before a reader could possibly still be looking
		// for the page's prior (nonexistent) entry.
		until = tick + maxLag
	case entry.DelayedFlush >= tick:
		until = entry.DelayedFlush
	default:
		until = 0
	}

	if until != 0 && (until < tick || until > tick+maxLag) {
		return 0, fmt.Errorf("delay oracle produced until=%d outside [%d, %d] for page %d: %w",
			until, tick, tick+maxLag, p, ErrInvariant)
	}

	return until, nil
}
