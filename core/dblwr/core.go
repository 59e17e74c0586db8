package dblwr

import (
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// Core is the assembled doublewrite subsystem: a StagingArea plus the
// ports it needs to actually move bytes, and the two staging blocks'
// page numbers recorded by Bootstrap. FlushBuffered, WriteSingle and
// OnTargetWriteComplete are all methods on Core rather than StagingArea,
// the same split memtable.BufferPoolManager (bookkeeping) and
// log_manager.LogManager (the I/O that bookkeeping gates) draw between
// each other.
type Core struct {
	staging *StagingArea

	io          FileIO
	tablespaces Tablespaces
	oracle      PageOracle

	sysSpace pagemanager.SpaceID
	block1   pagemanager.PageID
	block2   pagemanager.PageID

	metrics *Metrics
	log     *zap.Logger
}

// NewCore wires a StagingArea against its collaborators. block1/block2 come
// from either Bootstrap (first run) or the header (subsequent runs).
func NewCore(cfg Config, sysSpace pagemanager.SpaceID, block1, block2 pagemanager.PageID, io FileIO, tablespaces Tablespaces, oracle PageOracle, metrics *Metrics, log *zap.Logger) *Core {
	named := log.Named("dblwr")
	return &Core{
		staging:     NewStagingArea(cfg, oracle, named),
		io:          io,
		tablespaces: tablespaces,
		oracle:      oracle,
		sysSpace:    sysSpace,
		block1:      block1,
		block2:      block2,
		metrics:     metrics,
		log:         named,
	}
}

// PostBatch stages h for the next batch drain.
func (c *Core) PostBatch(h PageHandle) {
	c.staging.PostBatch(h)
	c.metrics.pagesStaged.WithLabelValues("batch").Inc()
}

// stagingOffset computes the byte offset of slot i within the system
// tablespace, choosing block1 or block2 depending on which half of the
// staging area i falls in.
func (c *Core) stagingOffset(i int) (pagemanager.SpaceID, int64) {
	b := c.staging.BlockSize()
	pageSize := int64(c.staging.PageSize())
	if i < b {
		return c.sysSpace, int64(c.block1)*pageSize + int64(i)*pageSize
	}
	return c.sysSpace, int64(c.block2)*pageSize + int64(i-b)*pageSize
}
