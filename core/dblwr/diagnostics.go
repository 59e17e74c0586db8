package dblwr

import (
	commonutils "github.com/sushant-115/gojodb/internal/common_utils"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// dumpBytes caps how much of a page gets hex-dumped into the log; the full
// page is rarely needed to see that a header field is wrong.
const dumpBytes = 256

// DumpPage logs a hex dump of a page's header bytes, the way the original
// buf_dblwr_assert_on_corrupt_block dumps the offending block before the
// process crashes. Called from the fatal page-check paths in staging and
// the batch drain, and from recovery's both-copies-corrupted path.
func DumpPage(log *zap.Logger, msg string, space pagemanager.SpaceID, page pagemanager.PageID, data []byte) {
	log.Error(msg,
		zap.Uint32("space", uint32(space)),
		zap.Uint32("page", uint32(page)),
		zap.String("dump", commonutils.HexDump(data, dumpBytes)),
	)
}

// crash logs one structured diagnostic and terminates the process. It is a
// method on StagingArea so tests can substitute a non-exiting stand-in —
// see StagingArea.onFatal.
func (s *StagingArea) crash(err error) {
	if s.onFatal != nil {
		s.onFatal(err)
		return
	}
	s.log.Fatal("doublewrite: fatal error, terminating", zap.Error(err))
}
