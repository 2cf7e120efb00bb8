package swmr

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/jwsblokland/vfdswmr/pkg/fs"
)

// OSFileDriver is the default FileDriver, backing the shadow file with a
// real file opened through fs.FS. It is a thin wrapper: ReadAt and WriteAt
// use the handle's own ReadAt/WriteAt when it implements io.ReaderAt or
// io.WriterAt (fs.File embeds io.Seeker, not those interfaces), and
// otherwise Seek and then Read or Write. It takes no lock, so on that
// fallback path concurrent calls share one seek position.
type OSFileDriver struct {
	fsys fs.FS
	path string
	f    fs.File
}

// OpenShadowFile opens (or, for a writer, creates) the shadow file at
// path and returns a FileDriver over it.
//
// When create is true and no file exists at path yet, the file is
// brought into existence atomically via a temp-file-plus-rename: a
// reader racing the very first writer init must never observe a
// zero-length or partially-written shadow file.
func OpenShadowFile(fsys fs.FS, path string, create bool, initialSize int64) (*OSFileDriver, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("stat shadow file %q: %w", path, err)
	}

	if !exists {
		if !create {
			return nil, fmt.Errorf("shadow file %q does not exist: %w", path, ErrConfig)
		}

		zeroes := bytes.NewReader(make([]byte, initialSize))
		if err := atomic.WriteFile(path, zeroes); err != nil {
			return nil, fmt.Errorf("create shadow file %q: %w", path, err)
		}
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open shadow file %q: %w", path, err)
	}

	return &OSFileDriver{fsys: fsys, path: path, f: file}, nil
}

// ReadAt reads length bytes at offset.
func (d *OSFileDriver) ReadAt(offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)

	ra, ok := d.f.(io.ReaderAt)
	if ok {
		n, err := ra.ReadAt(buf, int64(offset))
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read at %d: %w", offset, err)
		}
		return buf[:n], nil
	}

	if _, err := d.f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to %d: %w", offset, err)
	}
	n, err := io.ReadFull(d.f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read at %d: %w", offset, err)
	}
	return buf[:n], nil
}

// WriteAt writes data at offset.
func (d *OSFileDriver) WriteAt(offset uint64, data []byte) error {
	wa, ok := d.f.(io.WriterAt)
	if ok {
		if _, err := wa.WriteAt(data, int64(offset)); err != nil {
			return fmt.Errorf("write at %d: %w", offset, err)
		}
		return nil
	}

	if _, err := d.f.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", offset, err)
	}
	if _, err := d.f.Write(data); err != nil {
		return fmt.Errorf("write at %d: %w", offset, err)
	}
	return nil
}

// Sync commits pending writes.
func (d *OSFileDriver) Sync() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("sync shadow file: %w: %w", ErrIO, err)
	}
	return nil
}

// Truncate resizes the shadow file.
func (d *OSFileDriver) Truncate(size int64) error {
	truncater, ok := d.f.(interface{ Truncate(int64) error })
	if !ok {
		return fmt.Errorf("shadow file handle does not support truncate: %w", ErrIO)
	}
	if err := truncater.Truncate(size); err != nil {
		return fmt.Errorf("truncate shadow file to %d: %w: %w", size, ErrIO, err)
	}
	return nil
}

// Close releases the shadow file handle.
func (d *OSFileDriver) Close() error {
	return d.f.Close()
}

// Remove deletes the shadow file at its path.
func (d *OSFileDriver) Remove() error {
	if err := d.fsys.Remove(d.path); err != nil {
		return fmt.Errorf("remove shadow file %q: %w", d.path, err)
	}
	return nil
}

var _ FileDriver = (*OSFileDriver)(nil)
