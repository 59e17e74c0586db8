// Package ssdcache implements the optional SSD staging backend: a FIFO
// ring of page slots on a raw file, with second-chance survival for
// recently-accessed entries and write-back on eviction. It is an
// alternative to the on-tablespace doublewrite blocks, selected by
// ssd_cache_enabled, not a replacement for the header/bootstrap path.
package ssdcache

import (
	"sync"

	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

// Flags are the per-entry bits the insertion and write-back protocols test
// and set under the entry's own mutex.
type Flags uint8

const (
	FlagValid Flags = 1 << iota // occupied by a live (space, offset)
	FlagDirty                   // differs from its home tablespace copy
	FlagRef                     // accessed recently; survives one eviction pass
	FlagGSC                     // granted second chance this insertion pass
	FlagWB                      // write-back in progress
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// IOFix marks which kind of I/O, if any, currently owns an entry. A
// reservation must wait for IOFixNone before it may repurpose a slot.
type IOFix int

const (
	IOFixNone IOFix = iota
	IOFixRead
	IOFixWrite
)

// Entry is one metadata directory slot, M[i] in the insertion protocol.
// ssd_offset is implicit: it is the entry's own index into the directory,
// since the ring and the directory advance in lockstep.
type Entry struct {
	mu sync.Mutex

	Space    pagemanager.SpaceID
	PageNo   pagemanager.PageID
	LSN      uint64
	Flags    Flags
	RefCount int
	IOFix    IOFix
}

type cacheKey struct {
	space pagemanager.SpaceID
	page  pagemanager.PageID
}

func keyOf(space pagemanager.SpaceID, page pagemanager.PageID) cacheKey {
	return cacheKey{space: space, page: page}
}
