package dblwr

import (
	"fmt"
	"sync"

	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// fakeSpace is one tablespace's worth of bytes, growing on demand the way a
// sparse file would.
type fakeSpace struct {
	data []byte
}

func (s *fakeSpace) ensure(n int) {
	if len(s.data) < n {
		grown := make([]byte, n)
		copy(grown, s.data)
		s.data = grown
	}
}

// fakeIO is an in-memory dblwr.FileIO/dblwr.Tablespaces double. AIOWrite
// runs synchronously and invokes done before returning, which keeps tests
// deterministic without needing a real worker pool.
type fakeIO struct {
	mu     sync.Mutex
	spaces map[pagemanager.SpaceID]*fakeSpace
	zip    map[pagemanager.SpaceID]int

	flushes   int
	failWrite bool
}

func newFakeIO() *fakeIO {
	return &fakeIO{spaces: make(map[pagemanager.SpaceID]*fakeSpace), zip: make(map[pagemanager.SpaceID]int)}
}

func (f *fakeIO) space(space pagemanager.SpaceID) *fakeSpace {
	s, ok := f.spaces[space]
	if !ok {
		s = &fakeSpace{}
		f.spaces[space] = s
	}
	return s
}

func (f *fakeIO) ReadAt(space pagemanager.SpaceID, dst []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.space(space)
	end := offset + int64(len(dst))
	s.ensure(int(end))
	copy(dst, s.data[offset:end])
	return nil
}

func (f *fakeIO) WriteAt(space pagemanager.SpaceID, src []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return fmt.Errorf("fakeIO: simulated write failure")
	}
	s := f.space(space)
	end := offset + int64(len(src))
	s.ensure(int(end))
	copy(s.data[offset:end], src)
	return nil
}

func (f *fakeIO) Flush(space pagemanager.SpaceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeIO) AIOWrite(space pagemanager.SpaceID, page pagemanager.PageID, data []byte, done func(err error)) error {
	pageSize := len(data)
	err := f.WriteAt(space, data, int64(page)*int64(pageSize))
	done(err)
	return nil
}

func (f *fakeIO) PumpAIO() {}

func (f *fakeIO) WaitUntilNoPending() {}

func (f *fakeIO) Exists(space pagemanager.SpaceID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.spaces[space]
	return ok
}

func (f *fakeIO) InBounds(space pagemanager.SpaceID, page pagemanager.PageID) bool {
	return true
}

func (f *fakeIO) ZipSize(space pagemanager.SpaceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zip[space]
}

func (f *fakeIO) FlushAll(kind FlushKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// fakeOracle is a dblwr.PageOracle double whose checks all default to
// "page is fine"; tests override individual fields to force a failure path.
type fakeOracle struct {
	corrupted     func(buf []byte, zipSize int) bool
	zeroes        func(buf []byte, zipSize int) bool
	validateIndex func(buf []byte) bool
	lsnMatch      func(buf []byte) bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		corrupted:     func(buf []byte, zipSize int) bool { return false },
		zeroes:        allZero,
		validateIndex: func(buf []byte) bool { return true },
		lsnMatch:      func(buf []byte) bool { return true },
	}
}

func allZero(buf []byte, zipSize int) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func (o *fakeOracle) IsCorrupted(buf []byte, zipSize int) bool    { return o.corrupted(buf, zipSize) }
func (o *fakeOracle) IsZeroes(buf []byte, zipSize int) bool       { return o.zeroes(buf, zipSize) }
func (o *fakeOracle) ValidateIndexPage(buf []byte) bool           { return o.validateIndex(buf) }
func (o *fakeOracle) LSNStampsMatch(buf []byte) bool              { return o.lsnMatch(buf) }

func testLogger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l
}

// newTestPage builds a page handle with the given identity, ready to post
// to a StagingArea: fakeOracle's default LSNStampsMatch ignores content, so
// the data itself never needs a real checksum stamped into it.
func newTestPage(space pagemanager.SpaceID, id pagemanager.PageID, pageSize int, fill byte) PageHandle {
	p := pagemanager.NewPage(space, id, pageSize)
	data := p.GetData()
	for i := range data {
		data[i] = fill
	}
	return p
}
