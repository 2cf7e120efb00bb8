package main

import (
	"sync"

	"github.com/jwsblokland/vfdswmr/pkg/swmr"
)

// demoPageBuffer is a minimal PageBuffer for operator-driven exploration:
// 'dirty <page> <bytes>' stages raw bytes for a page, and the next tick
// reconciles them into the shadow index exactly the way a real page
// cache's tick-list would.
type demoPageBuffer struct {
	mu       sync.Mutex
	tickList map[uint32][]byte
	delayed  []uint64
	removed  []uint64
}

func newDemoPageBuffer() *demoPageBuffer {
	return &demoPageBuffer{tickList: map[uint32][]byte{}}
}

func (p *demoPageBuffer) stage(page uint32, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickList[page] = data
}

func (p *demoPageBuffer) SetTick(uint64) {}

func (p *demoPageBuffer) FlushRawData() error { return nil }

func (p *demoPageBuffer) UpdateIndex(idx *swmr.IndexStore) (swmr.ReconcileCounts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var counts swmr.ReconcileCounts

	for page, image := range p.tickList {
		_, existed := idx.Find(page)

		e := swmr.Entry{P: page, Length: uint32(len(image)), EntryPtr: image}
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

func (p *demoPageBuffer) ReleaseTickList() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickList = map[uint32][]byte{}
}

func (p *demoPageBuffer) ReleaseDelayedWrites(currentTick uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var remaining []uint64
	for _, deadline := range p.delayed {
		if deadline > currentTick {
			remaining = append(remaining, deadline)
		}
	}
	p.delayed = remaining
}

func (p *demoPageBuffer) RemoveEntry(addr uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, addr)
}

func (p *demoPageBuffer) DelayedWriteListLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delayed)
}

// demoMetadataCache is a minimal MetadataCache that just counts calls;
// the REPL has no real metadata objects to evict or refresh.
type demoMetadataCache struct {
	mu      sync.Mutex
	evicted []uint32
}

func newDemoMetadataCache() *demoMetadataCache {
	return &demoMetadataCache{}
}

func (m *demoMetadataCache) Flush() error { return nil }

func (m *demoMetadataCache) EvictOrRefreshAllEntriesInPage(p uint32, tick uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted = append(m.evicted, p)
	return nil
}
