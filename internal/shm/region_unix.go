//go:build unix

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrRegionNotFound reports that no collector has created the named region.
var ErrRegionNotFound = errors.New("shm: region not found")

// Region is a mapped shared memory region backed by a file under /dev/shm
// (or the temp directory when /dev/shm is unavailable). The same path scheme
// a POSIX shm_open of the region name would use.
type Region struct {
	file  *os.File
	mem   []byte
	path  string
	owner bool
}

// DefaultDir returns the preferred backing directory for region files.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// CreateRegion creates (or truncates) the region file in dir and maps it
// read-write. The caller owns the region and is responsible for unlinking it
// at clean shutdown. A leftover file from a crashed owner is reclaimed by
// the truncate.
func CreateRegion(dir, name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: creating region file %s: %w", path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: sizing region file to %d bytes: %w", size, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: mapping region: %w", err)
	}

	return &Region{file: file, mem: mem, path: path, owner: true}, nil
}

// OpenRegion maps an existing region file read-only.
func OpenRegion(dir, name string) (*Region, error) {
	path := filepath.Join(dir, name)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (is the collector running?)", ErrRegionNotFound, path)
		}
		return nil, fmt.Errorf("shm: opening region file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: stat region file: %w", err)
	}
	size := int(info.Size())

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: mapping region read-only: %w", err)
	}

	return &Region{file: file, mem: mem, path: path}, nil
}

// Bytes returns the mapped region. The slice is invalid after Close.
func (r *Region) Bytes() []byte { return r.mem }

// Size returns the mapped length in bytes.
func (r *Region) Size() int { return len(r.mem) }

// Path returns the backing file path.
func (r *Region) Path() string { return r.path }

// Close unmaps and closes the region. The owning process also unlinks the
// backing file so readers started later see ErrRegionNotFound rather than a
// stale window.
func (r *Region) Close() error {
	var firstErr error
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	if r.owner && r.path != "" {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
		r.path = ""
	}
	return firstErr
}
