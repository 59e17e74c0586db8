package ssdcache

import (
	"errors"
	"fmt"
	"os"

	"github.com/sushant-115/gojodb/core/dblwr"
	"golang.org/x/sys/unix"
)

// ring is the raw file backing the SSD cache: pread/pwrite at page-aligned
// offsets, opened with O_DIRECT so the kernel page cache never shadows
// what is actually durable on the device.
type ring struct {
	file     *os.File
	pageSize int
	capacity int // C, in pages
}

func openRing(path string, pageSize, capacity int) (*ring, error) {
	direct := true
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|unix.O_DIRECT, 0o640)
	if err != nil {
		// O_DIRECT is refused by some filesystems (notably tmpfs); fall back
		// to buffered I/O rather than fail outright.
		direct = false
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open ssd cache ring %q: %w", path, err)
		}
	}
	size := int64(capacity) * int64(pageSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("size ssd cache ring to %d bytes: %w", size, err)
	}
	if direct {
		// Other filesystems accept O_DIRECT at open but reject transfers not
		// aligned to their block size; probe one page and, on EINVAL, fall
		// back to buffered I/O the same way.
		probe := dblwr.AlignedBuffer(pageSize, pageSize)
		if _, err := f.ReadAt(probe, 0); errors.Is(err, unix.EINVAL) {
			f.Close()
			if f, err = os.OpenFile(path, os.O_RDWR, 0o640); err != nil {
				return nil, fmt.Errorf("reopen ssd cache ring %q without O_DIRECT: %w", path, err)
			}
		}
	}
	return &ring{file: f, pageSize: pageSize, capacity: capacity}, nil
}

func (r *ring) close() error { return r.file.Close() }

// readSpan reads count pages starting at slot first, wrapping mod C if the
// span crosses the end of the ring (a "two-part read").
func (r *ring) readSpan(first, count int) ([]byte, error) {
	buf := dblwr.AlignedBuffer(count*r.pageSize, r.pageSize)
	return r.transferSpan(buf, first, count, r.file.ReadAt)
}

// writeSpan is readSpan's write counterpart, used for the bulk rebuild
// write of an insertion; write-backs to home tablespaces go through the
// FileIO port instead.
func (r *ring) writeSpan(buf []byte, first, count int) error {
	_, err := r.transferSpan(buf, first, count, func(p []byte, off int64) (int, error) {
		return r.file.WriteAt(p, off)
	})
	return err
}

func (r *ring) transferSpan(buf []byte, first, count int, op func([]byte, int64) (int, error)) ([]byte, error) {
	tail := r.capacity - first
	if count <= tail {
		n, err := op(buf[:count*r.pageSize], int64(first)*int64(r.pageSize))
		return buf[:n], err
	}
	firstPart := tail
	if _, err := op(buf[:firstPart*r.pageSize], int64(first)*int64(r.pageSize)); err != nil {
		return nil, err
	}
	if _, err := op(buf[firstPart*r.pageSize:count*r.pageSize], 0); err != nil {
		return nil, err
	}
	return buf[:count*r.pageSize], nil
}
