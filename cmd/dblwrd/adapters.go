package main

import (
	"encoding/binary"

	"github.com/sushant-115/gojodb/core/pageio"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// filPageLSNOffset is the byte offset of the page header's LSN field, the
// same InnoDB FIL_PAGE layout recovery/loader.go reads FIL_PAGE_OFFSET and
// FIL_PAGE_ARCH_LOG_NO_OR_SPACE_ID from.
const filPageLSNOffset = 16

// pageOracle is a standalone dblwr.PageOracle: it knows nothing about
// record formats or B-tree structure, only the fixed FIL_PAGE header/trailer
// layout every page shares, which is all the doublewrite path ever needs to
// ask of a page.
type pageOracle struct{}

func (pageOracle) IsZeroes(buf []byte, zipSize int) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func (o pageOracle) IsCorrupted(buf []byte, zipSize int) bool {
	if len(buf) < filPageLSNOffset+8+8 {
		return true
	}
	return !o.LSNStampsMatch(buf)
}

func (pageOracle) ValidateIndexPage(buf []byte) bool {
	return len(buf) > 0
}

// LSNStampsMatch compares the header LSN's low 32 bits against the
// trailer's low 32 bits, the classic torn-write signature: a half-written
// page has a header from the new write and a trailer left over from the
// old one.
func (pageOracle) LSNStampsMatch(buf []byte) bool {
	if len(buf) < filPageLSNOffset+8+8 {
		return false
	}
	headerLow32 := binary.BigEndian.Uint32(buf[filPageLSNOffset+4 : filPageLSNOffset+8])
	trailerOff := len(buf) - 8
	trailerLow32 := binary.BigEndian.Uint32(buf[trailerOff+4 : trailerOff+8])
	return headerLow32 == trailerLow32
}

// noopCheckpoint stands in for the real checkpoint manager, which lives
// outside this binary's scope; MakeCheckpoint only needs to happen once,
// right after Bootstrap allocates a fresh doublewrite area.
type noopCheckpoint struct {
	log *zap.Logger
}

func (c *noopCheckpoint) MakeCheckpoint(lsnMax uint64) error {
	c.log.Info("checkpoint requested", zap.Uint64("lsn_max", lsnMax))
	return nil
}

// noopMiniTransaction stands in for the real latch-stacking mini-transaction
// manager; Bootstrap only uses Begin/Commit to bound how many page latches
// it holds at once, which this demo binary has no other latch holder to
// contend with.
type noopMiniTransaction struct{}

func (noopMiniTransaction) Begin() error  { return nil }
func (noopMiniTransaction) Commit() error { return nil }

// fixedExtentAllocator hands out consecutive pages directly from the
// system tablespace file, in lieu of a real segment/extent allocator.
type fixedExtentAllocator struct {
	file *pageio.TablespaceFile
}

func (a *fixedExtentAllocator) CreateFileSegment(sysSpace pagemanager.SpaceID, fsegSlot []byte) error {
	return nil
}

func (a *fixedExtentAllocator) AllocatePage(sysSpace pagemanager.SpaceID) (pagemanager.PageID, error) {
	return a.file.AllocatePage()
}
