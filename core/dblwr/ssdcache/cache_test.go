package ssdcache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojodb/core/dblwr"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

const testPageSize = 256

type fakeIO struct {
	mu     sync.Mutex
	spaces map[pagemanager.SpaceID][]byte
}

func newFakeIO() *fakeIO {
	return &fakeIO{spaces: make(map[pagemanager.SpaceID][]byte)}
}

func (f *fakeIO) ReadAt(space pagemanager.SpaceID, dst []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.spaces[space]
	end := offset + int64(len(dst))
	if end > int64(len(buf)) {
		return fmt.Errorf("fakeIO: read past end")
	}
	copy(dst, buf[offset:end])
	return nil
}

func (f *fakeIO) WriteAt(space pagemanager.SpaceID, src []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.spaces[space]
	end := offset + int64(len(src))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
		f.spaces[space] = buf
	}
	copy(buf[offset:end], src)
	return nil
}

func (f *fakeIO) Flush(space pagemanager.SpaceID) error { return nil }
func (f *fakeIO) AIOWrite(space pagemanager.SpaceID, page pagemanager.PageID, data []byte, done func(error)) error {
	err := f.WriteAt(space, data, int64(page)*int64(len(data)))
	done(err)
	return nil
}
func (f *fakeIO) PumpAIO()            {}
func (f *fakeIO) WaitUntilNoPending() {}

func (f *fakeIO) Exists(space pagemanager.SpaceID) bool { return true }
func (f *fakeIO) InBounds(space pagemanager.SpaceID, page pagemanager.PageID) bool {
	return true
}
func (f *fakeIO) ZipSize(space pagemanager.SpaceID) int { return 0 }
func (f *fakeIO) FlushAll(kind dblwr.FlushKind) error     { return nil }

func (f *fakeIO) mount(space pagemanager.SpaceID, size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spaces[space] = make([]byte, size)
}

func testLogger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l
}

func newTestCache(t *testing.T, capacity int) (*Cache, *fakeIO) {
	t.Helper()
	io := newFakeIO()
	cfg := dblwr.Config{
		BlockSize: 4, BatchSize: 1, PageSize: testPageSize,
		SSDCacheEnabled: true, SSDCacheSize: capacity, SSDCachePath: filepath.Join(t.TempDir(), "ring"),
	}
	c, err := NewCache(cfg, io, io, dblwr.NewTestMetrics(), testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Start(cfg.SSDCachePath))
	t.Cleanup(func() { c.Stop() })
	return c, io
}

func page(fill byte) []byte {
	p := make([]byte, testPageSize)
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestCache_Insert_PopulatesHashAndRing(t *testing.T) {
	c, _ := newTestCache(t, 8)
	dataSpace := pagemanager.SpaceID(5)

	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 1, LSN: 1, Data: page(0xAA)},
		{Space: dataSpace, PageNo: 2, LSN: 1, Data: page(0xBB)},
	}))

	e, ok := c.Lookup(dataSpace, 1)
	require.True(t, ok)
	require.True(t, e.Flags.has(FlagValid))
	require.True(t, e.Flags.has(FlagRef), "Lookup marks the entry for second chance")

	got, err := c.ring.readSpan(0, 2)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), got[0])
	require.Equal(t, byte(0xBB), got[testPageSize])
}

func TestCache_Insert_RejectsBatchLargerThanCapacity(t *testing.T) {
	c, _ := newTestCache(t, 2)
	dataSpace := pagemanager.SpaceID(5)
	err := c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 1, Data: page(1)},
		{Space: dataSpace, PageNo: 2, Data: page(2)},
		{Space: dataSpace, PageNo: 3, Data: page(3)},
	})
	require.Error(t, err)
}

func TestCache_Insert_WritesBackDisplacedEntryToHomeTablespace(t *testing.T) {
	c, io := newTestCache(t, 2)
	dataSpace := pagemanager.SpaceID(5)
	io.mount(dataSpace, 100*testPageSize)

	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 1, Data: page(0x11)},
		{Space: dataSpace, PageNo: 2, Data: page(0x22)},
	}))

	// The ring is now full and neither entry was looked up (no REF bit), so
	// inserting one more page must evict and write back page 1 (the oldest).
	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 3, Data: page(0x33)},
	}))

	writtenBack := make([]byte, testPageSize)
	require.NoError(t, io.ReadAt(dataSpace, writtenBack, int64(1)*testPageSize))
	require.Equal(t, byte(0x11), writtenBack[0], "evicted page 1 should have been written to its home offset")

	_, stillCached := c.Lookup(dataSpace, 1)
	require.False(t, stillCached, "evicted entry must be removed from the hash index")
}

func TestCache_Insert_SecondChanceSurvivesOneEvictionPass(t *testing.T) {
	c, io := newTestCache(t, 2)
	dataSpace := pagemanager.SpaceID(5)
	io.mount(dataSpace, 100*testPageSize)

	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 1, Data: page(0x11)},
		{Space: dataSpace, PageNo: 2, Data: page(0x22)},
	}))

	// Touch page 1 so it is granted second chance on the next reservation.
	_, ok := c.Lookup(dataSpace, 1)
	require.True(t, ok)

	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 3, Data: page(0x33)},
	}))

	// Page 1 must have survived; page 2 (no REF bit) should have been
	// evicted and written back instead.
	_, page1Cached := c.Lookup(dataSpace, 1)
	require.True(t, page1Cached, "page 1 earned second chance and must still be cached")

	writtenBack := make([]byte, testPageSize)
	require.NoError(t, io.ReadAt(dataSpace, writtenBack, int64(2)*testPageSize))
	require.Equal(t, byte(0x22), writtenBack[0])
}

func TestCache_Wrapped_FalseUntilRingCompletesALap(t *testing.T) {
	c, _ := newTestCache(t, 4)
	require.False(t, c.Wrapped())

	dataSpace := pagemanager.SpaceID(5)
	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 1, Data: page(1)},
		{Space: dataSpace, PageNo: 2, Data: page(2)},
	}))
	require.False(t, c.Wrapped())

	require.NoError(t, c.Insert([]PageToInsert{
		{Space: dataSpace, PageNo: 3, Data: page(3)},
		{Space: dataSpace, PageNo: 4, Data: page(4)},
	}))
	require.True(t, c.Wrapped())
}
