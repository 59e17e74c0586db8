package ssdcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/sushant-115/gojodb/core/dblwr"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// PageToInsert is one page the caller wants durably cached, the SSD
// backend's equivalent of a staging-area PostBatch argument.
type PageToInsert struct {
	Space  pagemanager.SpaceID
	PageNo pagemanager.PageID
	LSN    uint64
	Data   []byte
}

// Cache is the FIFO ring plus its metadata directory and hash index. Its
// Start/Stop lifecycle, stopChan/wg pairing and named logger follow
// tiered_storage.TieredStorageManager; its per-slot bookkeeping follows
// memtable.BufferPoolManager's victim-scan loop, generalized from LRU
// eviction to second-chance FIFO.
type Cache struct {
	hashMu sync.RWMutex // fold(space,offset) -> *Entry
	hash   map[cacheKey]*Entry

	metaMu  sync.Mutex // meta_idx_lock: serializes free_idx reservation
	meta    []*Entry   // M[0..C), indexed by physical ring slot
	freeIdx int
	wrapped bool

	ring     *ring
	pageSize int
	c        int

	io          dblwr.FileIO
	tablespaces dblwr.Tablespaces
	metrics     *dblwr.Metrics
	log         *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCache builds the directory and hash index but does not yet open the
// ring file; call Start for that.
func NewCache(cfg dblwr.Config, io dblwr.FileIO, tablespaces dblwr.Tablespaces, metrics *dblwr.Metrics, log *zap.Logger) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache{
		hash:        make(map[cacheKey]*Entry, cfg.SSDCacheSize),
		meta:        make([]*Entry, cfg.SSDCacheSize),
		pageSize:    cfg.PageSize,
		c:           cfg.SSDCacheSize,
		io:          io,
		tablespaces: tablespaces,
		metrics:     metrics,
		log:         log.Named("dblwr.ssdcache"),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start opens the backing ring file. cfg.SSDCachePath must already be
// validated non-empty.
func (c *Cache) Start(path string) error {
	r, err := openRing(path, c.pageSize, c.c)
	if err != nil {
		return err
	}
	c.ring = r
	c.log.Info("ssd cache started", zap.String("path", path), zap.Int("capacity_pages", c.c))
	return nil
}

// Stop closes the ring file. Write-backs run synchronously inside Insert;
// Stop does not wait for an Insert that is still running.
func (c *Cache) Stop() error {
	close(c.stopChan)
	c.wg.Wait()
	return c.ring.close()
}

func fold(space pagemanager.SpaceID, page pagemanager.PageID) cacheKey {
	return keyOf(space, page)
}

// Insert runs the eight-step insertion protocol for a batch of n new
// pages: reserve a span of the ring wide enough to hold them after giving
// second chance to recently-touched survivors, write back anything it
// displaces, then pwrite the rebuilt span.
func (c *Cache) Insert(pages []PageToInsert) error {
	n := len(pages)
	if n == 0 || n > c.c {
		return fmt.Errorf("ssd cache insert: batch of %d pages must hold between 1 and ring capacity %d pages", n, c.c)
	}

	first, survivors, writebacks := c.reserveSpan(n)
	total := len(survivors) + n

	outBuf := dblwr.AlignedBuffer(total*c.pageSize, c.pageSize)

	if len(survivors) > 0 {
		existing, err := c.ring.readSpan(first, total)
		if err != nil {
			return fmt.Errorf("ssd cache: read existing span before rebuild: %w", err)
		}
		for i, idx := range survivors {
			srcOff := (idx - first + c.c) % c.c * c.pageSize
			copy(outBuf[i*c.pageSize:(i+1)*c.pageSize], existing[srcOff:srcOff+c.pageSize])
		}
	}
	for i, p := range pages {
		copy(outBuf[(len(survivors)+i)*c.pageSize:], p.Data)
	}

	if err := c.writeBackDisplaced(writebacks); err != nil {
		return err
	}

	c.hashMu.Lock()
	for i, idx := range survivors {
		newIdx := (first + i) % c.c
		e := c.meta[idx]
		if newIdx != idx {
			c.meta[newIdx] = e
			c.meta[idx] = nil
		}
		c.metrics.SSDHit()
	}
	for i, p := range pages {
		idx := (first + len(survivors) + i) % c.c
		e := &Entry{Space: p.Space, PageNo: p.PageNo, LSN: p.LSN, Flags: FlagValid | FlagDirty, IOFix: IOFixWrite}
		if old := c.meta[idx]; old != nil {
			delete(c.hash, keyOf(old.Space, old.PageNo))
		}
		c.meta[idx] = e
		c.hash[keyOf(p.Space, p.PageNo)] = e
	}
	c.hashMu.Unlock()

	if err := c.ring.writeSpan(outBuf, first, total); err != nil {
		return fmt.Errorf("ssd cache: write rebuilt span: %w", err)
	}

	for i := range pages {
		idx := (first + len(survivors) + i) % c.c
		c.meta[idx].mu.Lock()
		c.meta[idx].IOFix = IOFixNone
		c.meta[idx].mu.Unlock()
	}
	return nil
}

// reserveSpan implements steps 1-4 of the insertion protocol: scan forward
// from free_idx, granting second chance to REF|VALID slots, until exactly
// n non-survivor slots have been scanned, then advance free_idx past the
// whole scanned span.
func (c *Cache) reserveSpan(n int) (first int, survivors []int, writebacks []int) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	first = c.freeIdx
	scanned := 0
	nonSurvivors := 0
	for nonSurvivors < n {
		idx := (first + scanned) % c.c
		e := c.meta[idx]
		scanned++
		if e == nil {
			nonSurvivors++
			continue
		}
		e.mu.Lock()
		gsc := e.Flags.has(FlagRef) && e.Flags.has(FlagValid)
		if gsc {
			e.Flags |= FlagGSC
			e.Flags &^= FlagRef
			survivors = append(survivors, idx)
		} else {
			nonSurvivors++
			if e.Flags.has(FlagValid) {
				writebacks = append(writebacks, idx)
			}
		}
		e.mu.Unlock()
	}

	absoluteEnd := first + scanned
	if absoluteEnd >= c.c {
		c.wrapped = true
	}
	c.freeIdx = absoluteEnd % c.c
	return first, survivors, writebacks
}

// writeBackDisplaced runs the write-back state machine for every entry the
// reservation pass decided not to keep: mark WB intent, wait for any
// in-flight I/O to drain, write synchronously to the entry's home
// tablespace, then remove it from the hash. A concurrent invalidation of
// the same entry makes this a no-op.
func (c *Cache) writeBackDisplaced(idxs []int) error {
	for _, idx := range idxs {
		e := c.meta[idx]
		if e == nil {
			continue
		}
		e.mu.Lock()
		if !e.Flags.has(FlagValid) {
			e.mu.Unlock()
			continue
		}
		e.Flags |= FlagWB
		for e.IOFix != IOFixNone {
			e.mu.Unlock()
			time.Sleep(time.Millisecond)
			e.mu.Lock()
		}
		space, page := e.Space, e.PageNo
		e.mu.Unlock()

		data, err := c.ring.readSpan(idx, 1)
		if err != nil {
			return fmt.Errorf("ssd cache: read displaced entry before write-back: %w", err)
		}
		offset := int64(page) * int64(c.pageSize)
		if err := c.io.WriteAt(space, data, offset); err != nil {
			return fmt.Errorf("ssd cache: write back (%d,%d): %w", space, page, err)
		}

		c.hashMu.Lock()
		e.mu.Lock()
		if e.Flags.has(FlagValid) {
			e.Flags &^= FlagValid | FlagWB
			delete(c.hash, keyOf(space, page))
		}
		e.mu.Unlock()
		c.hashMu.Unlock()
		c.metrics.SSDWriteback()
	}
	return nil
}

// Lookup returns the cached copy of (space, page) if present, marking it
// REF so it earns a second chance on the next eviction pass.
func (c *Cache) Lookup(space pagemanager.SpaceID, page pagemanager.PageID) (*Entry, bool) {
	c.hashMu.RLock()
	e, ok := c.hash[keyOf(space, page)]
	c.hashMu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	e.Flags |= FlagRef
	e.mu.Unlock()
	return e, true
}

// Wrapped reports whether the ring has completed at least one full lap.
func (c *Cache) Wrapped() bool { return c.wrapped }
