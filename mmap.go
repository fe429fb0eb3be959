package persist

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// file owns the open file descriptor and the current memory mapping. It
// is the only thing in the package that talks to the OS; every other
// component operates on byte slices handed to it by file.
type file struct {
	fd     *os.File
	mapped []byte
}

func totalSize(indexCapacity uint32, dataSize uint64) uint64 {
	return uint64(headerSize) + uint64(indexCapacity)*uint64(indexSlotSize) + dataSize
}

// openFile opens path, creating it if create is true, and acquires a
// non-blocking exclusive advisory lock on the descriptor. A contended
// lock is reported as ErrTableLocked rather than retried.
func openFile(path string, create bool) (*file, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}

	fd, err := os.OpenFile(path, flags, 0o644) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrIO, path, err)
	}

	if lockErr := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); lockErr != nil {
		_ = fd.Close()

		if lockErr == unix.EWOULDBLOCK { //nolint:errorlint // syscall errno comparison
			return nil, fmt.Errorf("%w: %q", ErrTableLocked, path)
		}

		return nil, fmt.Errorf("%w: flock %q: %w", ErrIO, path, lockErr)
	}

	return &file{fd: fd}, nil
}

// setLen sets the file length and remaps it, invalidating every live
// view the caller was holding into the previous mapping.
func (f *file) setLen(size uint64) error {
	if err := f.fd.Truncate(int64(size)); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrIO, err)
	}

	return f.remap()
}

func (f *file) remap() error {
	if f.mapped != nil {
		if err := unix.Munmap(f.mapped); err != nil {
			return fmt.Errorf("%w: munmap: %w", ErrIO, err)
		}

		f.mapped = nil
	}

	info, err := f.fd.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %w", ErrIO, err)
	}

	size := info.Size()
	if size == 0 {
		f.mapped = nil

		return nil
	}

	mapped, err := unix.Mmap(int(f.fd.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("%w: mmap: %w", ErrIO, err)
	}

	f.mapped = mapped

	return nil
}

// flush requests the OS to write back dirty pages of the mapping.
func (f *file) flush() error {
	if f.mapped == nil {
		return nil
	}

	if err := unix.Msync(f.mapped, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync: %w", ErrIO, err)
	}

	return nil
}

// close unmaps, unlocks (by closing the descriptor), and releases the
// underlying file.
func (f *file) close() error {
	var err error

	if f.mapped != nil {
		err = unix.Munmap(f.mapped)
		f.mapped = nil
	}

	if closeErr := f.fd.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}

	return nil
}
