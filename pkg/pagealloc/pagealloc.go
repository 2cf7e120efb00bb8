// Package pagealloc provides a reference shadow-file free-space manager:
// a page-aligned bump allocator backed by a coalescing free list. It
// implements the swmr.ShadowAllocator interface and is meant as the
// default allocator for standalone use and tests — a real deployment may
// swap in whatever free-space manager already tracks the primary file's
// own page allocation.
package pagealloc

import (
	"fmt"
	"sort"
	"sync"
)

// freeRange is a released, reusable [offset, offset+length) byte range.
type freeRange struct {
	offset uint64
	length uint32
}

// Allocator is a page-aligned bump allocator with a first-fit,
// coalescing free list. Every address it returns is a multiple of
// pageSize, and every allocation is rounded up to a whole number of
// pages, so any length an index entry or index block asks for always
// lands on a page boundary — the core asserts exactly this.
type Allocator struct {
	mu       sync.Mutex
	pageSize uint32
	next     uint64
	free     []freeRange
}

// New returns an empty Allocator with nothing yet claimed. The header
// and initial index pages are not pre-reserved here — the caller
// (typically swmr.OpenWriter) claims them the same way as any other
// page, via Alloc, and relies on the bump allocator handing out 0 then
// pageSize for those first two calls.
func New(pageSize uint32) *Allocator {
	return &Allocator{
		pageSize: pageSize,
	}
}

// Alloc reserves size bytes, rounded up to a whole number of pages, and
// returns its offset. It first tries the free list (first-fit among
// ranges large enough to hold the request), falling back to extending
// the file with a fresh bump allocation.
func (a *Allocator) Alloc(size uint32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size == 0 {
		return 0, fmt.Errorf("alloc size must be positive")
	}

	pages := (uint64(size) + uint64(a.pageSize) - 1) / uint64(a.pageSize)
	need := pages * uint64(a.pageSize)

	for i, r := range a.free {
		if uint64(r.length) >= need {
			addr := r.offset
			remaining := uint64(r.length) - need
			if remaining == 0 {
				a.free = append(a.free[:i], a.free[i+1:]...)
			} else {
				a.free[i] = freeRange{offset: r.offset + need, length: uint32(remaining)}
			}
			return addr, nil
		}
	}

	addr := a.next
	a.next += need
	return addr, nil
}

// Free returns [offset, offset+length) to the free list, coalescing with
// any adjacent ranges so the list doesn't fragment under steady
// alloc/free churn.
func (a *Allocator) Free(offset uint64, length uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = append(a.free, freeRange{offset: offset, length: length})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].offset < a.free[j].offset })

	coalesced := a.free[:1]
	for _, r := range a.free[1:] {
		last := &coalesced[len(coalesced)-1]
		if last.offset+uint64(last.length) == r.offset {
			last.length += r.length
			continue
		}
		coalesced = append(coalesced, r)
	}
	a.free = coalesced

	return nil
}

// Close releases the allocator. The bump/free-list allocator holds no
// external resources, so this is a no-op.
func (a *Allocator) Close() error {
	return nil
}
