package dblwr

import (
	"time"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// FlushBuffered drains the batch region: stage every pending page to disk,
// fsync, then fire off asynchronous target writes for each. Callers must
// invoke this after posting a batch, or before blocking on a page latch
// that some other goroutine might be holding while itself waiting on the
// staging area — skipping that contract is how a page-cleaner and a latch
// holder end up deadlocked on each other.
func (c *Core) FlushBuffered() error {
	for {
		f, draining := c.staging.snapshotBatch()
		if f == 0 && !draining {
			return nil
		}
		if draining {
			// snapshotBatch already waited on batchEvent; re-check from
			// scratch since the region may have reset under us.
			continue
		}

		start := time.Now()
		if err := c.drainBatch(f); err != nil {
			return err
		}
		c.metrics.batchDrainSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}

// drainBatch runs with batchRunning already set and f published. It never
// re-touches the staging mutex except through Release, called later by
// OnTargetWriteComplete once each target write lands.
func (c *Core) drainBatch(f int) error {
	b := c.staging.BlockSize()

	for i := 0; i < f; i++ {
		h := c.staging.HandleAt(i)
		if h == nil {
			continue
		}
		if !h.IsCompressed() && !c.oracle.LSNStampsMatch(c.staging.SlotBytes(i)) {
			DumpPage(c.log, "doublewrite: staged copy LSN mismatch before stage-flush", h.GetSpaceID(), h.GetPageID(), c.staging.SlotBytes(i))
			c.staging.crash(flushmanager.Fatal(flushmanager.ErrChecksumMismatch))
			return nil
		}
	}

	first := c.staging.BatchRegion(min(f, b))
	if err := c.io.WriteAt(c.sysSpace, first, blockByteOffset(c.block1, 0, c.staging.PageSize())); err != nil {
		return err
	}
	if f > b {
		second := c.staging.RegionBetween(b, f)
		if err := c.io.WriteAt(c.sysSpace, second, blockByteOffset(c.block2, 0, c.staging.PageSize())); err != nil {
			return err
		}
	}

	if err := c.io.Flush(c.sysSpace); err != nil {
		return err
	}

	for i := 0; i < f; i++ {
		h := c.staging.HandleAt(i)
		if h == nil {
			continue
		}
		data := h.GetData()
		if h.IsCompressed() {
			data = h.ZipData()
		}
		space, pageNo := h.GetSpaceID(), h.GetPageID()
		c.io.AIOWrite(space, pageNo, data, func(err error) {
			if err != nil {
				c.log.Error("doublewrite: target write failed", zap.Uint32("space", uint32(space)), zap.Uint32("page", uint32(pageNo)), zap.Error(err))
				c.staging.crash(flushmanager.Fatal(err))
				return
			}
			c.OnTargetWriteComplete(h, ReleaseBatch)
		})
	}
	c.io.PumpAIO()
	return nil
}

func blockByteOffset(block pagemanager.PageID, slotOffset, pageSize int) int64 {
	return int64(block)*int64(pageSize) + int64(slotOffset)*int64(pageSize)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
