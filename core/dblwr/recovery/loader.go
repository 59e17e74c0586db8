// Package recovery loads the staged pages recorded in the doublewrite area
// at startup and repairs torn or zero-filled data-file pages from them.
package recovery

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/gojodb/core/dblwr"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// filPageSpaceIDOffset and filPageOffsetOffset are the byte offsets of a
// page's stamped space id and page number within its own header, the same
// positions the original FIL_PAGE_ARCH_LOG_NO_OR_SPACE_ID/FIL_PAGE_OFFSET
// constants name.
const (
	filPageOffsetOffset   = 4
	filPageSpaceIDOffset  = 34
)

// PageFrame is one staged page recovered from the doublewrite area, ready
// for the repairer to compare against its target.
type PageFrame struct {
	Space pagemanager.SpaceID
	Page  pagemanager.PageID
	Data  []byte
}

func pageSpaceID(data []byte) pagemanager.SpaceID {
	return pagemanager.SpaceID(binary.BigEndian.Uint32(data[filPageSpaceIDOffset:]))
}

func pagePageNo(data []byte) pagemanager.PageID {
	return pagemanager.PageID(binary.BigEndian.Uint32(data[filPageOffsetOffset:]))
}

// LoadStagedPages reads the trx-sys page's doublewrite header and, if an
// area is present, returns the staged pages ready for Repair. A missing
// header is not an error: it means this system tablespace predates
// doublewrite, or this is a genuinely fresh database, so recovery has
// nothing to do.
func LoadStagedPages(io dblwr.FileIO, sysSpace pagemanager.SpaceID, byteOffset int64, pageSize int, blockSize int, log *zap.Logger) ([]PageFrame, error) {
	log = log.Named("dblwr.recovery")

	h, err := dblwr.ReadHeader(io, sysSpace, byteOffset)
	if err != nil {
		return nil, fmt.Errorf("read doublewrite header: %w", err)
	}
	if !h.Valid() {
		log.Info("doublewrite: no area found, skipping recovery")
		return nil, nil
	}

	block1 := pagemanager.PageID(h.Block1)
	block2 := pagemanager.PageID(h.Block2)

	buf := make([]byte, 2*blockSize*pageSize)
	half := blockSize * pageSize
	if err := io.ReadAt(sysSpace, buf[:half], int64(block1)*int64(pageSize)); err != nil {
		return nil, fmt.Errorf("read doublewrite block1: %w", err)
	}
	if err := io.ReadAt(sysSpace, buf[half:], int64(block2)*int64(pageSize)); err != nil {
		return nil, fmt.Errorf("read doublewrite block2: %w", err)
	}

	if h.SpaceIDsStored != dblwr.SpaceIDsStoredN {
		return upgradeLegacyHeader(io, sysSpace, buf, block1, block2, pageSize, blockSize, log)
	}

	frames := make([]PageFrame, 0, 2*blockSize)
	for i := 0; i < 2*blockSize; i++ {
		data := buf[i*pageSize : (i+1)*pageSize]
		frames = append(frames, PageFrame{
			Space: pageSpaceID(data),
			Page:  pagePageNo(data),
			Data:  data,
		})
	}
	log.Info("doublewrite: staged pages loaded", zap.Int("count", len(frames)))
	return frames, nil
}

// upgradeLegacyHeader zeroes the space-id field of every staged page in
// place and writes each slot back to its own staging offset, one time,
// for an area created before doublewrite stamped space ids. These pages
// never reach the repairer: the original format cannot tell us which
// tablespace a page belongs to, so there's nothing safe to repair from.
func upgradeLegacyHeader(io dblwr.FileIO, sysSpace pagemanager.SpaceID, buf []byte, block1, block2 pagemanager.PageID, pageSize, blockSize int, log *zap.Logger) ([]PageFrame, error) {
	log.Warn("doublewrite: legacy header found, zeroing space ids")
	for i := 0; i < 2*blockSize; i++ {
		data := buf[i*pageSize : (i+1)*pageSize]
		binary.BigEndian.PutUint32(data[filPageSpaceIDOffset:], 0)

		block, slot := block1, i
		if i >= blockSize {
			block, slot = block2, i-blockSize
		}
		offset := int64(block)*int64(pageSize) + int64(slot)*int64(pageSize)
		if err := io.WriteAt(sysSpace, data, offset); err != nil {
			return nil, fmt.Errorf("rewrite legacy staged page %d: %w", i, err)
		}
	}
	if err := io.Flush(sysSpace); err != nil {
		return nil, err
	}
	return nil, nil
}
