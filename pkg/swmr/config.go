package swmr

import (
	"fmt"
	"time"
)

// defaultPageSize is used when Config.PageSize is left zero. It is large
// enough to hold the header (see headerSize in format.go) with room to
// spare.
const defaultPageSize = 4096

// Config configures a writer or reader SWMR attachment to a shadow file.
type Config struct {
	// Path is the filesystem path of the shadow file.
	Path string

	// PageSize is the fixed page size in bytes, shared by the primary
	// file and the shadow file. Must be >= headerSize. Defaults to
	// defaultPageSize when zero.
	PageSize uint32

	// TickLen is the soft deadline between consecutive EOTs, in tenths
	// of a second. Must be positive.
	TickLen int

	// MaxLag is the number of ticks that must elapse between publishing
	// a superseded page image and reclaiming its shadow-file storage.
	// Must be positive.
	MaxLag uint64

	// PagesReserved is the number of shadow-file pages truncated at
	// init. Must be at least 2 (header page + one index page).
	PagesReserved uint32

	// Writer selects writer-side (true) or reader-side (false) attach
	// semantics.
	Writer bool

	// FlushRawData requests that raw-data caches be flushed during the
	// writer's EOT step 1. Consumed only by the PageBuffer collaborator.
	FlushRawData bool
}

// validate rejects configuration errors: tick_len=0, max_lag=0,
// page_size < header size, md_pages_reserved too small to hold an
// empty index.
func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required: %w", ErrConfig)
	}
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.PageSize < headerSize {
		return fmt.Errorf("page_size %d < header size %d: %w", c.PageSize, headerSize, ErrConfig)
	}
	if c.TickLen <= 0 {
		return fmt.Errorf("tick_len must be positive: %w", ErrConfig)
	}
	if c.MaxLag == 0 {
		return fmt.Errorf("max_lag must be positive: %w", ErrConfig)
	}
	if c.PagesReserved < 2 {
		return fmt.Errorf("md_pages_reserved %d < 2: %w", c.PagesReserved, ErrConfig)
	}
	return nil
}

// tickDuration converts TickLen (tenths of a second) to a time.Duration.
func (c *Config) tickDuration() time.Duration {
	return time.Duration(c.TickLen) * 100 * time.Millisecond
}
