package dblwr

import (
	"sync"
	"unsafe"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// StagingArea is the in-memory counterpart of the two on-disk staging
// blocks: an aligned byte buffer of 2*B page slots, split into a batch
// region [0, K) and a single region [K, 2B), plus the bookkeeping needed
// to know which slots are occupied and by which page.
//
// Grounded on memtable.BufferPoolManager's pageTable/lruMap pairing — one
// mutex protecting a handful of parallel slices/maps — generalized from
// "one side-table per page" to "two disjoint slot regions with different
// producers".
type StagingArea struct {
	mu sync.Mutex

	pageSize int
	b        int // B: pages per staging block
	k        int // K: doublewrite_batch_size, slots [0,K) reserved for batch posting

	writeBuf  []byte        // page-aligned, len == 2*b*pageSize
	inUse     []bool        // len == 2*b; meaningful only for [k, 2b)
	handles   []PageHandle  // len == 2*b
	firstFree int           // high-water mark into the batch region, [0,k]
	bReserved int
	sReserved int

	batchRunning bool

	// batchEvent/singleEvent stand in for a reset-count wakeup: sync.Cond
	// already captures the waiter's position atomically with releasing mu,
	// so there is no separate generation counter to thread through.
	batchEvent  *sync.Cond
	singleEvent *sync.Cond

	oracle  PageOracle
	log     *zap.Logger
	onFatal func(error) // overridable in tests; nil means "really crash"
}

// NewStagingArea allocates the write buffer and zeroes every side-table.
// B and K come from cfg; cfg.Validate must have already been called.
func NewStagingArea(cfg Config, oracle PageOracle, log *zap.Logger) *StagingArea {
	b := cfg.BlockSize
	twoB := 2 * b
	s := &StagingArea{
		pageSize:  cfg.PageSize,
		b:         b,
		k:         cfg.BatchSize,
		writeBuf:  AlignedBuffer(twoB*cfg.PageSize, cfg.PageSize),
		inUse:     make([]bool, twoB),
		handles:   make([]PageHandle, twoB),
		firstFree: 0,
		oracle:    oracle,
		log:       log,
	}
	s.batchEvent = sync.NewCond(&s.mu)
	s.singleEvent = sync.NewCond(&s.mu)
	return s
}

// AlignedBuffer returns a slice of size n whose start address is aligned
// to align bytes, by over-allocating and trimming the head — the portable
// substitute for posix_memalign. Exported so ssdcache can build the same
// kind of buffer for its O_DIRECT ring I/O.
func AlignedBuffer(n, align int) []byte {
	return alignedBuffer(n, align)
}

func alignedBuffer(n, align int) []byte {
	raw := make([]byte, n+align)
	offset := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(align)); rem != 0 {
		offset = align - rem
	}
	return raw[offset : offset+n : offset+n]
}

func (s *StagingArea) slot(i int) []byte {
	return s.writeBuf[i*s.pageSize : (i+1)*s.pageSize]
}

// PageInside reports whether (space, page) falls inside block1 or block2 —
// ported from buf_dblwr_page_inside in the original source. Callers use it
// to refuse to ever target-write into the staging area itself.
func (s *StagingArea) PageInside(block1, block2 pagemanager.PageID, page pagemanager.PageID) bool {
	if page >= block1 && page < block1+pagemanager.PageID(s.b) {
		return true
	}
	if page >= block2 && page < block2+pagemanager.PageID(s.b) {
		return true
	}
	return false
}

// validatePreStage checks a page before it is allowed into the staging
// area: for uncompressed pages the two LSN stamps must match, and index
// pages flagged check-on-flush must pass structural validation. A failure
// is always fatal — letting a torn or corrupt page reach the staging area
// at all would poison the only copy recovery can trust.
func (s *StagingArea) validatePreStage(h PageHandle) {
	if h.IsCompressed() {
		return
	}
	data := h.GetData()
	if !s.oracle.LSNStampsMatch(data) {
		DumpPage(s.log, "doublewrite: LSN stamp mismatch before staging", h.GetSpaceID(), h.GetPageID(), data)
		s.crash(flushmanager.Fatal(flushmanager.ErrChecksumMismatch))
		return
	}
	if h.CheckOnFlush() && !s.oracle.ValidateIndexPage(data) {
		DumpPage(s.log, "doublewrite: index page failed structural validation before staging", h.GetSpaceID(), h.GetPageID(), data)
		s.crash(flushmanager.Fatal(flushmanager.ErrInvalidPageData))
	}
}

// PostBatch reserves a slot in [0, firstFree) and copies h's frame into the
// write buffer. It blocks while the batch region is full or a drain is in
// progress: once batchRunning is set, no producer may add to the batch
// region until the drain clears it.
func (s *StagingArea) PostBatch(h PageHandle) {
	s.validatePreStage(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.firstFree >= s.k || s.batchRunning {
		s.batchEvent.Wait()
	}

	i := s.firstFree
	s.firstFree++
	s.bReserved++
	s.handles[i] = h
	s.copyFrame(i, h)

	debugAssert(s.firstFree == s.bReserved || s.batchRunning, "firstFree=%d bReserved=%d batchRunning=%v", s.firstFree, s.bReserved, s.batchRunning)
}

// PostSingle allocates a free slot in [K, 2B) for h. The caller (the
// single-page flusher) is responsible for actually copying/writing the
// frame; PostSingle only reserves the slot and blocks while the single
// region is full.
func (s *StagingArea) PostSingle(h PageHandle) int {
	s.validatePreStage(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.sReserved == 2*s.b-s.k {
		s.singleEvent.Wait()
	}

	for i := s.k; i < 2*s.b; i++ {
		if !s.inUse[i] {
			s.inUse[i] = true
			s.handles[i] = h
			s.sReserved++
			return i
		}
	}
	// Unreachable: sReserved < 2B-K guarantees a free slot exists.
	s.crash(flushmanager.Fatal(flushmanager.ErrBufferPoolFull))
	return -1
}

// copyFrame writes h's frame into write_buf slot i, zero-padding the
// remainder when h is compressed so a partially written slot never leaks
// stale bytes past the end of the compressed image.
func (s *StagingArea) copyFrame(i int, h PageHandle) {
	dst := s.slot(i)
	for j := range dst {
		dst[j] = 0
	}
	if h.IsCompressed() {
		copy(dst, h.ZipData())
	} else {
		copy(dst, h.GetData())
	}
}

// ReleaseKind distinguishes which region a completed slot belongs to.
type ReleaseKind int

const (
	ReleaseBatch ReleaseKind = iota
	ReleaseSingle
)

// Release is called by the completion handler when a target write
// finishes. For a batch slot it decrements bReserved and, when the count
// reaches zero, performs the final cross-tablespace flush under the
// staging mutex before resetting the region. For a single slot it frees
// the slot by handle identity. finalFlush is called with the mutex held,
// exactly once, the moment bReserved hits zero.
func (s *StagingArea) Release(h PageHandle, kind ReleaseKind, finalFlush func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case ReleaseBatch:
		if s.bReserved == 0 {
			s.crash(flushmanager.Fatal(flushmanager.ErrHandleNotFound))
			return
		}
		s.bReserved--
		debugAssert(s.bReserved >= 0, "bReserved went negative")
		if s.bReserved == 0 {
			if err := finalFlush(); err != nil {
				s.crash(err)
				return
			}
			s.firstFree = 0
			s.batchRunning = false
			for i := 0; i < s.k; i++ {
				s.handles[i] = nil
			}
			s.batchEvent.Broadcast()
		}
	case ReleaseSingle:
		found := -1
		for i := s.k; i < 2*s.b; i++ {
			if s.handles[i] == h {
				found = i
				break
			}
		}
		if found < 0 {
			s.crash(flushmanager.Fatal(flushmanager.ErrHandleNotFound))
			return
		}
		s.inUse[found] = false
		s.handles[found] = nil
		s.sReserved--
		debugAssert(s.sReserved >= 0, "sReserved went negative")
		s.singleEvent.Broadcast()
	}
}

// HandleAt returns the handle bound to slot i. Safe to call lock-free once
// the caller holds a published snapshot F and i < F, per the staging
// area's "batch flusher may read slots [0,F) lock-free" exception.
func (s *StagingArea) HandleAt(i int) PageHandle { return s.handles[i] }

// SlotBytes exposes slot i's backing bytes directly, for a single-page
// write that needs scratch space without going through copyFrame's
// locking.
func (s *StagingArea) SlotBytes(i int) []byte { return s.slot(i) }

// BatchRegion returns the first f slots of write_buf as one contiguous
// span — valid because the batch region always starts at slot 0.
func (s *StagingArea) BatchRegion(f int) []byte { return s.writeBuf[:f*s.pageSize] }

// RegionBetween returns slots [from, to) of write_buf as one contiguous
// span, for the part of a batch drain that spills past block1 into block2.
func (s *StagingArea) RegionBetween(from, to int) []byte {
	return s.writeBuf[from*s.pageSize : to*s.pageSize]
}

func (s *StagingArea) PageSize() int  { return s.pageSize }
func (s *StagingArea) BlockSize() int { return s.b }

// snapshotBatch captures firstFree and marks a drain in progress, for the
// batch flusher to call under the same mutex before releasing it to do I/O.
func (s *StagingArea) snapshotBatch() (f int, alreadyDraining bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstFree == 0 {
		return 0, false
	}
	if s.batchRunning {
		s.batchEvent.Wait()
		// Caller restarts FlushBuffered from scratch: the region may have
		// been reset, refilled or claimed by another drain while this
		// goroutine waited.
		return 0, true
	}
	s.batchRunning = true
	return s.firstFree, false
}
