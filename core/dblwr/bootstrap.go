package dblwr

import (
	"fmt"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// mtrCommitEvery bounds how many page allocations Bootstrap performs per
// mini-transaction, mirroring wal.LogManager.Append's log-segment-rotation-
// by-size idiom: check a threshold, commit and restart, rather than
// holding an unbounded number of nested latches.
const mtrCommitEvery = 16

// ExtentAllocator is the minimal capability Bootstrap needs from the
// segment allocator: create the doublewrite area's file segment and hand
// back consecutive page numbers from it, one mini-transaction boundary at
// a time.
type ExtentAllocator interface {
	CreateFileSegment(sysSpace pagemanager.SpaceID, fsegSlot []byte) error
	AllocatePage(sysSpace pagemanager.SpaceID) (pagemanager.PageID, error)
}

// Bootstrap detects an existing doublewrite area via the header at
// byteOffset inside the trx-sys page; if absent, it allocates 2B+E/2 pages
// and stamps the header. bufferPoolPages is the caller's current
// buffer-pool capacity, checked against the minimum this subsystem needs
// to operate without starving everything else.
func Bootstrap(cfg Config, io FileIO, alloc ExtentAllocator, mtr MiniTransaction, checkpoint Checkpoint, bufferPool BufferPool, sysSpace pagemanager.SpaceID, byteOffset int64, extentSize int, bufferPoolPages int, lsnMax uint64, log *zap.Logger) (block1, block2 pagemanager.PageID, err error) {
	if existing, err := ReadHeader(io, sysSpace, byteOffset); err == nil && existing.Valid() {
		log.Info("doublewrite: existing area found", zap.Uint32("block1", existing.Block1), zap.Uint32("block2", existing.Block2))
		return pagemanager.PageID(existing.Block1), pagemanager.PageID(existing.Block2), nil
	}

	b := cfg.BlockSize
	required := (2*b + extentSize/2 + 100)
	if bufferPoolPages < required {
		return 0, 0, flushmanager.Fatal(fmt.Errorf("%w: need >= %d pages, have %d", flushmanager.ErrBootstrapInsufficientBuffer, required, bufferPoolPages))
	}

	var fseg [FsegHeaderSize]byte
	if err := alloc.CreateFileSegment(sysSpace, fseg[:]); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", flushmanager.ErrBootstrapOutOfSpace, err)
	}

	total := 2*b + extentSize/2
	pages := make([]pagemanager.PageID, 0, total)
	if err := mtr.Begin(); err != nil {
		return 0, 0, err
	}
	for i := 0; i < total; i++ {
		p, err := alloc.AllocatePage(sysSpace)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", flushmanager.ErrBootstrapOutOfSpace, err)
		}
		if i > 0 && p != pages[i-1]+1 {
			return 0, 0, flushmanager.Fatal(fmt.Errorf("doublewrite bootstrap: non-contiguous page allocation at index %d", i))
		}
		pages = append(pages, p)

		if (i+1)%mtrCommitEvery == 0 {
			if err := mtr.Commit(); err != nil {
				return 0, 0, err
			}
			if err := mtr.Begin(); err != nil {
				return 0, 0, err
			}
		}
	}
	if err := mtr.Commit(); err != nil {
		return 0, 0, err
	}

	half := extentSize / 2
	block1 = pages[half]
	block2 = pages[half+b]
	if uint64(block1) != uint64(extentSize) {
		return 0, 0, flushmanager.Fatal(fmt.Errorf("doublewrite bootstrap: block1=%d, want extent size %d", block1, extentSize))
	}
	if uint64(block2) != uint64(2*extentSize) {
		return 0, 0, flushmanager.Fatal(fmt.Errorf("doublewrite bootstrap: block2=%d, want 2*extent size %d", block2, 2*extentSize))
	}

	h := &Header{Fseg: fseg}
	h.Stamp(block1, block2)
	if err := WriteHeader(io, sysSpace, byteOffset, h); err != nil {
		return 0, 0, err
	}

	if err := checkpoint.MakeCheckpoint(lsnMax); err != nil {
		return 0, 0, err
	}
	bufferPool.InvalidateAll()

	log.Info("doublewrite: bootstrapped new area", zap.Uint32("block1", uint32(block1)), zap.Uint32("block2", uint32(block2)))
	return block1, block2, nil
}
