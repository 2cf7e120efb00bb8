// Package swmr implements the single-writer/multiple-reader shadow-file
// coordination core for a paged, content-addressed data file.
//
// One writer process appends and updates pages of a primary file. Any
// number of reader processes observe a consistent, bounded-stale view of
// that primary file without taking cross-process locks on its content.
// Coordination runs entirely through a small auxiliary shadow file that
// the writer republishes at the end of every tick: an index mapping
// logical pages to the physical shadow-file location of their current
// image.
//
// # End-of-tick protocol
//
// The writer's [Writer.RunEOT] and the reader's [Reader.RunEOT] are
// the only places state changes. The writer always publishes the index
// block before the header block, and a reader that observes a header tick
// and an index tick that disagree treats the read as torn and retries on
// the next scheduled tick — see [Reader.RunEOT].
//
// # Concurrency
//
// Within one process, at most one EOT runs at a time per file; the
// package does not serialize EOTs across goroutines itself — callers
// drive ticks from the [Scheduler]. Across processes, the shadow file is
// a lock-free publication channel: the writer is the only process that
// mutates it, and readers only ever read.
//
// # Error handling
//
// Errors fall into five kinds: resource exhaustion, shadow-file I/O
// failure, consistency violation, torn read, and configuration error.
// Only the first three and the last are returned as errors — a torn
// read is absorbed silently as "no new data this tick".
package swmr
