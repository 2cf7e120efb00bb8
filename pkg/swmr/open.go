package swmr

import (
	"errors"
	"fmt"

	"github.com/jwsblokland/vfdswmr/pkg/fs"
	"github.com/jwsblokland/vfdswmr/pkg/pagealloc"
)

var lock = fs.NewLocker(fs.NewReal())

// shadowLockSuffix names the advisory lock file used to enforce the
// single-writer invariant across processes: the shadow file itself
// carries no inter-process lock, but nothing stops two writer processes
// from racing unless something external serializes them — this lock is
// that something.
const shadowLockSuffix = ".writer.lock"

// OpenFile is the convenience entry point that wires a Config to a real
// shadow file on disk: it opens (creating if necessary) the shadow file
// through fsys, builds a default pagealloc.Allocator, and — for a
// writer — acquires the cross-process writer lock before calling
// OpenWriter. Programs that already have their own FileDriver or
// ShadowAllocator should call OpenWriter/OpenReader directly instead.
func OpenFile(cfg Config, fsys fs.FS, pages PageBuffer, metadata MetadataCache, sched *Scheduler) (*Writer, *fs.Lock, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	if !cfg.Writer {
		return nil, nil, fmt.Errorf("OpenFile called with Config.Writer=false: %w", ErrNotWriter)
	}

	writerLock, err := lock.TryLock(cfg.Path + shadowLockSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, nil, ErrBusy
		}
		return nil, nil, fmt.Errorf("acquire writer lock: %w", err)
	}

	driver, err := OpenShadowFile(fsys, cfg.Path, true, int64(cfg.PagesReserved)*int64(cfg.PageSize))
	if err != nil {
		_ = writerLock.Close()
		return nil, nil, err
	}

	allocator := pagealloc.New(cfg.PageSize)

	w, err := OpenWriter(cfg, driver, allocator, pages, metadata, sched)
	if err != nil {
		_ = driver.Close()
		_ = writerLock.Close()
		return nil, nil, err
	}

	return w, writerLock, nil
}

// OpenFileReader is the reader-side counterpart of OpenFile: it opens the
// existing shadow file read-write (readers never create it) and attaches
// a Reader with no writer-lock acquisition, since many readers may
// coexist.
func OpenFileReader(cfg Config, fsys fs.FS, pages PageBuffer, metadata MetadataCache, sched *Scheduler) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	driver, err := OpenShadowFile(fsys, cfg.Path, false, 0)
	if err != nil {
		return nil, err
	}

	r, err := OpenReader(cfg, driver, pages, metadata, sched)
	if err != nil {
		_ = driver.Close()
		return nil, err
	}

	return r, nil
}
