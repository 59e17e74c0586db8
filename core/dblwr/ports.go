// Package dblwr implements the doublewrite page-durability subsystem: a
// staging area that persists a copy of every candidate page before it is
// written to its home location, so that a torn or zero-filled page found
// on restart can be repaired from its intact twin.
//
// The subsystem never owns tablespace I/O, page validation, checkpointing
// or buffer-pool eviction itself — it consumes them through the small
// ports declared in this file, the same way a write path consumes a
// *flushmanager.DiskManager and a *wal.LogManager rather than doing file
// I/O and log replay inline.
package dblwr

import (
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

// PageHandle is the opaque back-pointer the staging area holds for a page
// in flight. Ownership always stays with the buffer pool; the doublewrite
// core only reads its frame/identity and, on completion, releases the
// slot — it never frees or reuses the handle itself.
type PageHandle = *pagemanager.Page

// FlushKind distinguishes the two callers of Tablespaces.FlushAll: a batch
// drain flushing every tablespace touched by that batch, versus recovery
// flushing everything once repair is complete.
type FlushKind int

const (
	FlushBatch FlushKind = iota
	FlushRecovery
)

// FileIO is the tablespace I/O capability the staging area and flushers
// consume. It is implemented by the buffer pool / tablespace layer and
// handed to the doublewrite core, never used by application code directly.
type FileIO interface {
	// ReadAt reads len(dst) bytes for space at the given byte offset.
	ReadAt(space pagemanager.SpaceID, dst []byte, offset int64) error
	// WriteAt writes src to space at the given byte offset, synchronously.
	WriteAt(space pagemanager.SpaceID, src []byte, offset int64) error
	// Flush fsyncs the given tablespace.
	Flush(space pagemanager.SpaceID) error
	// AIOWrite queues an asynchronous write of a single page to its home
	// location. done is invoked from the AIO pump goroutine, not from the
	// caller's stack, once the write completes (or fails).
	AIOWrite(space pagemanager.SpaceID, page pagemanager.PageID, data []byte, done func(err error)) error
	// PumpAIO wakes the async I/O worker(s) so queued writes are posted to
	// the OS. Mirrors buf_dblwr's "wake possible simulated aio thread".
	PumpAIO()
	// WaitUntilNoPending blocks until every AIOWrite queued so far has
	// completed (its done callback has returned).
	WaitUntilNoPending()
}

// Tablespaces answers questions about tablespace membership and bounds,
// and performs the cross-tablespace flush at the end of a batch drain or
// a recovery pass.
type Tablespaces interface {
	Exists(space pagemanager.SpaceID) bool
	InBounds(space pagemanager.SpaceID, page pagemanager.PageID) bool
	ZipSize(space pagemanager.SpaceID) int
	FlushAll(kind FlushKind) error
}

// PageOracle validates page contents without the doublewrite core needing
// to know anything about checksum algorithms or record formats.
type PageOracle interface {
	IsCorrupted(buf []byte, zipSize int) bool
	IsZeroes(buf []byte, zipSize int) bool
	ValidateIndexPage(buf []byte) bool
	// LSNStampsMatch compares the page header LSN (low 32 bits) against
	// the trailer's old-style checksum LSN (low 32 bits); a mismatch is
	// the classic signature of a torn write.
	LSNStampsMatch(buf []byte) bool
}

// Checkpoint is called once during bootstrap so that the newly-allocated
// doublewrite pages are covered by a checkpoint before anything relies on
// them being recoverable.
type Checkpoint interface {
	MakeCheckpoint(lsnMax uint64) error
}

// BufferPool is the minimal capability the bootstrap path needs: after
// allocating the doublewrite blocks directly on disk, any buffer-pool
// frames that happen to already cache those pages must be dropped so the
// next reader sees the freshly-stamped header.
type BufferPool interface {
	InvalidateAll()
}

// MiniTransaction models the allocator's latch-stacking boundary. The
// bootstrap loop must not hold more than a bounded number of nested page
// latches, so it commits and restarts one of these every 16 allocations,
// the same commit-and-restart shape as wal.LogManager.Append's
// segment-rotation-by-size.
type MiniTransaction interface {
	Commit() error
	Begin() error
}
