// Package pagemanager defines the in-memory page handle shared between the
// buffer pool and the doublewrite subsystem. The doublewrite core never
// owns a Page — it only ever holds a non-owning back-pointer to one — so
// everything here is sized for that: identity, a latch, and the fields the
// staging area needs to copy and re-validate a frame.
package pagemanager

import (
	"sync"
	"time"

	commonutils "github.com/sushant-115/gojodb/internal/common_utils"
)

const (
	InvalidPageID PageID = 0
	InvalidSpace  SpaceID = 0
)

type LSN uint64

const InvalidLSN LSN = 0

// PageID identifies a page within a single tablespace.
type PageID uint32

// SpaceID identifies a tablespace. Page identity in a multi-tablespace
// system is the pair (SpaceID, PageID), not PageID alone.
type SpaceID uint32

func (p *PageID) GetID() uint64 { return uint64(*p) }

// Page is an in-memory copy of a disk page plus the bookkeeping the buffer
// pool and doublewrite subsystem both need: pin count and dirty bit for
// eviction, LSN for the torn-write check, and an optional compressed image
// for pages stored in a compressed row format.
type Page struct {
	space    SpaceID
	id       PageID
	data     []byte
	zipSize  int    // 0 for uncompressed pages
	zipData  []byte // present only when zipSize > 0
	pinCount uint32
	isDirty  bool
	lsn      LSN

	checkOnFlush bool // true for index pages that need structural validation before staging

	latch     sync.RWMutex
	updatedAt time.Time
}

// NewPage creates a new Page instance sized to pageSize. Compressed pages
// additionally carry a zipSize-byte image allocated lazily via SetZipData.
func NewPage(space SpaceID, id PageID, pageSize int) *Page {
	return &Page{
		space: space,
		id:    id,
		data:  make([]byte, pageSize),
		lsn:   InvalidLSN,
	}
}

func (p *Page) Reset() {
	p.id = InvalidPageID
	p.space = InvalidSpace
	p.pinCount = 0
	p.isDirty = false
	p.lsn = InvalidLSN
	p.zipSize = 0
	p.zipData = nil
	p.checkOnFlush = false
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte             { return p.data }
func (p *Page) SetData(newData []byte) bool { copy(p.data, newData); return true }
func (p *Page) GetPageID() PageID           { return p.id }
func (p *Page) SetPageID(id PageID)         { p.id = id }
func (p *Page) GetSpaceID() SpaceID         { return p.space }
func (p *Page) SetSpaceID(s SpaceID)        { p.space = s }
func (p *Page) IsDirty() bool               { return p.isDirty }

func (p *Page) Pin() { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() uint32         { return p.pinCount }
func (p *Page) SetPinCount(pinCount uint32) { p.pinCount = pinCount }
func (p *Page) SetDirty(dirty bool)         { p.isDirty = dirty }
func (p *Page) GetLSN() LSN                 { return p.lsn }
func (p *Page) SetLSN(lsn LSN)              { p.lsn = lsn }

// ZipSize is 0 for an uncompressed page, else the compressed page size
// (a power of two below the regular page size).
func (p *Page) ZipSize() int       { return p.zipSize }
func (p *Page) ZipData() []byte    { return p.zipData }
func (p *Page) IsCompressed() bool { return p.zipSize > 0 }

func (p *Page) SetZipData(zipSize int, data []byte) {
	p.zipSize = zipSize
	p.zipData = data
}

// CheckOnFlush marks an index page for structural validation before it may
// be staged.
func (p *Page) CheckOnFlush() bool        { return p.checkOnFlush }
func (p *Page) SetCheckOnFlush(v bool)    { p.checkOnFlush = v }

func (p *Page) UpdatedAt(t time.Time)   { p.updatedAt = t }
func (p *Page) GetUpdatedAt() time.Time { return p.updatedAt }

// RLock/RUnlock/Lock/Unlock protect the in-memory contents of this specific
// page; a caller holding the write latch must flush before it blocks on
// anything else, so the latch is never held across a staging wait.
func (p *Page) RLock()  { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }

func (p *Page) Lock() {
	commonutils.PrintCaller("Page lock from", uint64(p.id), 2)
	p.latch.Lock()
}

func (p *Page) TryLock() bool { return p.latch.TryLock() }

func (p *Page) Unlock() {
	commonutils.PrintCaller("Page unlock from", uint64(p.id), 2)
	p.latch.Unlock()
}
