package swmr

import "sync"

// fakeFileDriver is an in-memory FileDriver for tests: a growable byte
// buffer standing in for the shadow file.
type fakeFileDriver struct {
	mu      sync.Mutex
	buf     []byte
	size    int64
	removed bool
}

func newFakeFileDriver() *fakeFileDriver {
	return &fakeFileDriver{}
}

func (d *fakeFileDriver) ensure(n int64) {
	if n > int64(len(d.buf)) {
		grown := make([]byte, n)
		copy(grown, d.buf)
		d.buf = grown
	}
	if n > d.size {
		d.size = n
	}
}

func (d *fakeFileDriver) ReadAt(offset uint64, length uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	end := int64(offset) + int64(length)
	d.ensure(end)
	out := make([]byte, length)
	copy(out, d.buf[offset:end])
	return out, nil
}

func (d *fakeFileDriver) WriteAt(offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	end := int64(offset) + int64(len(data))
	d.ensure(end)
	copy(d.buf[offset:end], data)
	return nil
}

func (d *fakeFileDriver) Sync() error { return nil }

func (d *fakeFileDriver) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensure(size)
	d.size = size
	return nil
}

func (d *fakeFileDriver) Close() error { return nil }

func (d *fakeFileDriver) Remove() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = true
	return nil
}

func (d *fakeFileDriver) fileSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// fakeAllocator is a trivial bump allocator for tests that don't care
// about free-list reuse (pkg/pagealloc is exercised separately in
// open_test.go / the cmd/swmrtool wiring).
type fakeAllocator struct {
	mu       sync.Mutex
	pageSize uint32
	next     uint64
}

func newFakeAllocator(pageSize uint32) *fakeAllocator {
	return &fakeAllocator{pageSize: pageSize}
}

func (a *fakeAllocator) Alloc(size uint32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pages := (uint64(size) + uint64(a.pageSize) - 1) / uint64(a.pageSize)
	addr := a.next
	a.next += pages * uint64(a.pageSize)
	return addr, nil
}

func (a *fakeAllocator) Free(offset uint64, length uint32) error { return nil }
func (a *fakeAllocator) Close() error                            { return nil }

// fakePageBuffer implements PageBuffer. Callers dirty a page by writing
// to tickList directly before calling Writer.RunEOT.
type fakePageBuffer struct {
	tickList       map[uint32][]byte
	delayedWrites  []uint64 // deadlines
	removed        []uint64
	ticksObserved  []uint64
	flushRawCalled int
}

func newFakePageBuffer() *fakePageBuffer {
	return &fakePageBuffer{tickList: map[uint32][]byte{}}
}

func (p *fakePageBuffer) SetTick(tick uint64) { p.ticksObserved = append(p.ticksObserved, tick) }

func (p *fakePageBuffer) FlushRawData() error {
	p.flushRawCalled++
	return nil
}

func (p *fakePageBuffer) UpdateIndex(idx *IndexStore) (ReconcileCounts, error) {
	var counts ReconcileCounts

	for page, image := range p.tickList {
		_, existed := idx.Find(page)
		e := Entry{P: page, Length: uint32(len(image)), EntryPtr: image}
		if existed {
			old, _ := idx.Find(page)
			e.S = old.S
			counts.Modified++
		} else {
			counts.Added++
		}
		idx.Upsert(e)
	}

	return counts, nil
}

func (p *fakePageBuffer) ReleaseTickList() { p.tickList = map[uint32][]byte{} }

func (p *fakePageBuffer) ReleaseDelayedWrites(currentTick uint64) {
	var remaining []uint64
	for _, deadline := range p.delayedWrites {
		if deadline > currentTick {
			remaining = append(remaining, deadline)
		}
	}
	p.delayedWrites = remaining
}

func (p *fakePageBuffer) RemoveEntry(addr uint64) { p.removed = append(p.removed, addr) }

func (p *fakePageBuffer) DelayedWriteListLen() int { return len(p.delayedWrites) }

// fakeMetadataCache implements MetadataCache, recording call order.
type fakeMetadataCache struct {
	flushCalls     int
	evictedPages   []uint32
	evictedAtTicks []uint64
}

func (m *fakeMetadataCache) Flush() error {
	m.flushCalls++
	return nil
}

func (m *fakeMetadataCache) EvictOrRefreshAllEntriesInPage(p uint32, tick uint64) error {
	m.evictedPages = append(m.evictedPages, p)
	m.evictedAtTicks = append(m.evictedAtTicks, tick)
	return nil
}
