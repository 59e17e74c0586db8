package dblwr

// OnTargetWriteComplete is invoked by the I/O layer when a target write to
// a home location finishes. It releases the originating slot and, for a
// batch, performs the final cross-tablespace flush the instant the last
// outstanding page in that batch lands.
func (c *Core) OnTargetWriteComplete(h PageHandle, kind ReleaseKind) {
	c.staging.Release(h, kind, func() error {
		return c.tablespaces.FlushAll(FlushBatch)
	})
	c.metrics.pagesDrained.WithLabelValues(releaseKindLabel(kind)).Inc()
}

func releaseKindLabel(kind ReleaseKind) string {
	if kind == ReleaseBatch {
		return "batch"
	}
	return "single"
}
