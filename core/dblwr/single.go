package dblwr

import "sync"

// WriteSingle stages and targets one page outside the batch path, for
// latency-sensitive evictions that cannot wait for the next drain. When
// waitForCompletion is true it returns only after the target write completes;
// otherwise it returns once the page is durably staged and leaves
// completion to OnTargetWriteComplete.
func (c *Core) WriteSingle(h PageHandle, waitForCompletion bool) error {
	i := c.staging.PostSingle(h)

	space, offset := c.stagingOffset(i)
	if h.IsCompressed() {
		dst := c.staging.SlotBytes(i)
		for j := range dst {
			dst[j] = 0
		}
		copy(dst, h.ZipData())
		if err := c.io.WriteAt(space, dst, offset); err != nil {
			return err
		}
	} else {
		if err := c.io.WriteAt(space, h.GetData(), offset); err != nil {
			return err
		}
	}

	if err := c.io.Flush(space); err != nil {
		return err
	}

	c.metrics.pagesStaged.WithLabelValues("single").Inc()

	targetSpace, pageNo := h.GetSpaceID(), h.GetPageID()
	targetData := h.GetData()
	if h.IsCompressed() {
		targetData = h.ZipData()
	}

	if !waitForCompletion {
		return c.io.AIOWrite(targetSpace, pageNo, targetData, func(err error) {
			if err == nil {
				c.OnTargetWriteComplete(h, ReleaseSingle)
			}
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var writeErr error
	if err := c.io.AIOWrite(targetSpace, pageNo, targetData, func(err error) {
		writeErr = err
		if err == nil {
			c.OnTargetWriteComplete(h, ReleaseSingle)
		}
		wg.Done()
	}); err != nil {
		return err
	}
	c.io.PumpAIO()
	wg.Wait()
	return writeErr
}
