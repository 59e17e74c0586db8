// Package bufferpool provides a default LRU-eviction implementation of
// the dblwr.BufferPool port, adapted from
// memtable.BufferPoolManager: same pageTable/lruList/lruMap triple,
// generalized from a single-tablespace PageID key to the (space, page)
// pair a multi-tablespace doublewrite core needs.
package bufferpool

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sushant-115/gojodb/core/dblwr"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

type frameKey struct {
	space pagemanager.SpaceID
	page  pagemanager.PageID
}

// Pool is a fixed-size set of page frames with LRU-by-least-recently-
// fetched eviction, wired to a doublewrite core through the
// dblwr.BufferPool port's single InvalidateAll method plus its own
// FetchPage/UnpinPage for driving test and demo flush paths.
type Pool struct {
	mu sync.Mutex

	io       dblwr.FileIO
	pageSize int

	frames    []*pagemanager.Page
	frameKeys []frameKey
	table     map[frameKey]int
	lru       *list.List
	lruElem   map[int]*list.Element

	log *zap.Logger
}

// New builds a pool of size frames, backed by io for page-ins.
func New(size int, pageSize int, io dblwr.FileIO, log *zap.Logger) *Pool {
	p := &Pool{
		io:        io,
		pageSize:  pageSize,
		frames:    make([]*pagemanager.Page, size),
		frameKeys: make([]frameKey, size),
		table:     make(map[frameKey]int, size),
		lru:       list.New(),
		lruElem:   make(map[int]*list.Element, size),
		log:       log.Named("bufferpool"),
	}
	for i := 0; i < size; i++ {
		p.frames[i] = pagemanager.NewPage(pagemanager.InvalidSpace, pagemanager.InvalidPageID, pageSize)
	}
	return p
}

// FetchPage returns the cached page for (space, page), pinning it and
// promoting it to most-recently-used; on a miss it evicts the current LRU
// victim (flushing it first if dirty) and reads the requested page in.
func (p *Pool) FetchPage(space pagemanager.SpaceID, page pagemanager.PageID) (*pagemanager.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := frameKey{space, page}
	if idx, ok := p.table[key]; ok {
		fr := p.frames[idx]
		fr.Pin()
		p.lru.MoveToFront(p.lruElem[idx])
		return fr, nil
	}

	idx, err := p.victim()
	if err != nil {
		return nil, err
	}
	victim := p.frames[idx]
	oldKey := p.frameKeys[idx]
	owner, inUse := p.table[oldKey]
	inUse = inUse && owner == idx

	if victim.IsDirty() && inUse {
		if err := p.io.WriteAt(oldKey.space, victim.GetData(), int64(oldKey.page)*int64(p.pageSize)); err != nil {
			return nil, fmt.Errorf("flush dirty victim frame (%d,%d): %w", oldKey.space, oldKey.page, err)
		}
		victim.SetDirty(false)
	}
	if inUse {
		delete(p.table, oldKey)
	}

	victim.Reset()
	if err := p.io.ReadAt(space, victim.GetData(), int64(page)*int64(p.pageSize)); err != nil {
		return nil, fmt.Errorf("read page (%d,%d): %w", space, page, err)
	}
	victim.SetSpaceID(space)
	victim.SetPageID(page)
	victim.SetPinCount(1)

	p.frameKeys[idx] = key
	p.table[key] = idx
	p.lruElem[idx] = p.lru.PushFront(idx)
	return victim, nil
}

// victim picks a never-used frame if one is still free, otherwise the
// least-recently-used unpinned frame tracked in the LRU list.
func (p *Pool) victim() (int, error) {
	for i := range p.frames {
		if _, used := p.lruElem[i]; !used {
			return i, nil
		}
	}
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		idx := e.Value.(int)
		if p.frames[idx].GetPinCount() == 0 {
			p.lru.Remove(e)
			delete(p.lruElem, idx)
			return idx, nil
		}
	}
	return -1, fmt.Errorf("bufferpool: no unpinned frame available to evict")
}

// UnpinPage decrements the pin count for (space, page), marking it dirty
// if the caller modified it.
func (p *Pool) UnpinPage(space pagemanager.SpaceID, page pagemanager.PageID, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.table[frameKey{space, page}]
	if !ok {
		return
	}
	fr := p.frames[idx]
	fr.Unpin()
	if dirty {
		fr.SetDirty(true)
	}
}

// InvalidateAll drops every cached frame, forcing the next FetchPage for
// any page to re-read from disk. Called once by Bootstrap right after it
// stamps a freshly-allocated doublewrite area.
func (p *Pool) InvalidateAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, fr := range p.frames {
		fr.Reset()
		p.frameKeys[i] = frameKey{}
	}
	p.table = make(map[frameKey]int, len(p.frames))
	p.lru = list.New()
	p.lruElem = make(map[int]*list.Element, len(p.frames))
	p.log.Info("buffer pool invalidated")
}
