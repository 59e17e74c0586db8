package recovery

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojodb/core/dblwr"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

const testPageSize = 512

// fakeIO (which doubles as the Tablespaces port) and fakeOracle mirror the
// doubles in core/dblwr's own tests, kept package-local since recovery
// lives one level below dblwr and must not import its _test.go files.

type fakeIO struct {
	mu       sync.Mutex
	spaces   map[pagemanager.SpaceID][]byte
	exists   map[pagemanager.SpaceID]bool
	zipSizes map[pagemanager.SpaceID]int
	flushes  int
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		spaces:   make(map[pagemanager.SpaceID][]byte),
		exists:   make(map[pagemanager.SpaceID]bool),
		zipSizes: make(map[pagemanager.SpaceID]int),
	}
}

func (f *fakeIO) setZipSize(space pagemanager.SpaceID, zipSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zipSizes[space] = zipSize
}

func (f *fakeIO) mount(space pagemanager.SpaceID, size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spaces[space] = make([]byte, size)
	f.exists[space] = true
}

func (f *fakeIO) ReadAt(space pagemanager.SpaceID, dst []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.spaces[space]
	end := offset + int64(len(dst))
	if end > int64(len(buf)) {
		return fmt.Errorf("fakeIO: read past end of space %d", space)
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

func (f *fakeIO) Flush(space pagemanager.SpaceID) error { f.flushes++; return nil }
func (f *fakeIO) AIOWrite(space pagemanager.SpaceID, page pagemanager.PageID, data []byte, done func(error)) error {
	err := f.WriteAt(space, data, int64(page)*int64(len(data)))
	done(err)
	return nil
}
func (f *fakeIO) PumpAIO()            {}
func (f *fakeIO) WaitUntilNoPending() {}

func (f *fakeIO) Exists(space pagemanager.SpaceID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[space]
}
func (f *fakeIO) InBounds(space pagemanager.SpaceID, page pagemanager.PageID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	stride := testPageSize
	if z := f.zipSizes[space]; z > 0 {
		stride = z
	}
	return int64(page)*int64(stride) < int64(len(f.spaces[space]))
}
func (f *fakeIO) ZipSize(space pagemanager.SpaceID) int { return f.zipSizes[space] }
func (f *fakeIO) FlushAll(kind dblwr.FlushKind) error    { f.flushes++; return nil }

type fakeOracle struct {
	corrupt func(buf []byte) bool
}

func (o *fakeOracle) IsCorrupted(buf []byte, zipSize int) bool {
	if o.corrupt != nil {
		return o.corrupt(buf)
	}
	return false
}
func (o *fakeOracle) IsZeroes(buf []byte, zipSize int) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
func (o *fakeOracle) ValidateIndexPage(buf []byte) bool { return true }
func (o *fakeOracle) LSNStampsMatch(buf []byte) bool    { return true }

func testLogger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l
}

func pageWithIdentity(space pagemanager.SpaceID, page pagemanager.PageID, fill byte) []byte {
	data := make([]byte, testPageSize)
	for i := range data {
		data[i] = fill
	}
	binary.BigEndian.PutUint32(data[filPageOffsetOffset:], uint32(page))
	binary.BigEndian.PutUint32(data[filPageSpaceIDOffset:], uint32(space))
	return data
}

func writeHeaderAndBlocks(t *testing.T, io *fakeIO, sysSpace pagemanager.SpaceID, byteOffset int64, blockSize int, frames []PageFrame) (block1, block2 pagemanager.PageID) {
	t.Helper()
	block1, block2 = pagemanager.PageID(64), pagemanager.PageID(128)
	io.mount(sysSpace, (int(block2)+blockSize+10)*testPageSize)

	h := &dblwr.Header{}
	h.Stamp(block1, block2)
	require.NoError(t, dblwr.WriteHeader(io, sysSpace, byteOffset, h))

	for i, f := range frames {
		block, slot := block1, i
		if i >= blockSize {
			block, slot = block2, i-blockSize
		}
		offset := int64(block)*int64(testPageSize) + int64(slot)*int64(testPageSize)
		require.NoError(t, io.WriteAt(sysSpace, f.Data, offset))
	}
	return block1, block2
}

func TestLoadStagedPages_NoHeaderIsNotAnError(t *testing.T) {
	io := newFakeIO()
	sysSpace := pagemanager.SpaceID(0)
	io.mount(sysSpace, 4096)

	frames, err := LoadStagedPages(io, sysSpace, 38, testPageSize, 4, testLogger())
	require.NoError(t, err)
	require.Nil(t, frames)
}

func TestLoadStagedPages_ReturnsStagedFrames(t *testing.T) {
	io := newFakeIO()
	sysSpace := pagemanager.SpaceID(0)
	dataSpace := pagemanager.SpaceID(9)

	staged := []PageFrame{
		{Space: dataSpace, Page: 10, Data: pageWithIdentity(dataSpace, 10, 0xAA)},
		{Space: dataSpace, Page: 11, Data: pageWithIdentity(dataSpace, 11, 0xBB)},
	}
	writeHeaderAndBlocks(t, io, sysSpace, 38, 4, staged)

	frames, err := LoadStagedPages(io, sysSpace, 38, testPageSize, 4, testLogger())
	require.NoError(t, err)
	require.Len(t, frames, 8) // 2*blockSize slots, most empty

	require.Equal(t, dataSpace, frames[0].Space)
	require.Equal(t, pagemanager.PageID(10), frames[0].Page)
	require.Equal(t, byte(0xAA), frames[0].Data[0])
}

func TestRepair_RewritesCorruptedTargetFromStagedCopy(t *testing.T) {
	io := newFakeIO()
	dataSpace := pagemanager.SpaceID(9)
	io.mount(dataSpace, 100*testPageSize)

	goodStaged := pageWithIdentity(dataSpace, 10, 0xAA)
	staged := []PageFrame{{Space: dataSpace, Page: 10, Data: goodStaged}}
	oracle := &fakeOracle{corrupt: func(buf []byte) bool { return len(buf) > 0 && buf[0] == 0xDE }}
	corruptTarget := make([]byte, testPageSize)
	corruptTarget[0] = 0xDE
	require.NoError(t, io.WriteAt(dataSpace, corruptTarget, 10*testPageSize))

	require.NoError(t, Repair(staged, io, io, oracle, dblwr.NewTestMetrics(), testLogger()))

	got := make([]byte, testPageSize)
	require.NoError(t, io.ReadAt(dataSpace, got, 10*testPageSize))
	require.Equal(t, byte(0xAA), got[0])
}

func TestRepair_RewritesZeroFilledTarget(t *testing.T) {
	io := newFakeIO()
	dataSpace := pagemanager.SpaceID(9)
	io.mount(dataSpace, 100*testPageSize)

	staged := pageWithIdentity(dataSpace, 20, 0x44)
	require.NoError(t, io.WriteAt(dataSpace, make([]byte, testPageSize), 20*testPageSize))

	frames := []PageFrame{{Space: dataSpace, Page: 20, Data: staged}}
	require.NoError(t, Repair(frames, io, io, &fakeOracle{}, dblwr.NewTestMetrics(), testLogger()))

	got := make([]byte, testPageSize)
	require.NoError(t, io.ReadAt(dataSpace, got, 20*testPageSize))
	require.Equal(t, byte(0x44), got[0])
}

func TestRepair_LeavesHealthyTargetUntouched(t *testing.T) {
	io := newFakeIO()
	dataSpace := pagemanager.SpaceID(9)
	io.mount(dataSpace, 100*testPageSize)

	target := pageWithIdentity(dataSpace, 30, 0x99)
	require.NoError(t, io.WriteAt(dataSpace, target, 30*testPageSize))

	staged := pageWithIdentity(dataSpace, 30, 0x11) // deliberately different; must be ignored
	frames := []PageFrame{{Space: dataSpace, Page: 30, Data: staged}}
	require.NoError(t, Repair(frames, io, io, &fakeOracle{}, dblwr.NewTestMetrics(), testLogger()))

	got := make([]byte, testPageSize)
	require.NoError(t, io.ReadAt(dataSpace, got, 30*testPageSize))
	require.Equal(t, byte(0x99), got[0], "a target that is neither corrupted nor zero-filled must not be rewritten")
}

func TestRepair_RewritesCorruptedTargetFromStagedCopy_CompressedTablespace(t *testing.T) {
	io := newFakeIO()
	dataSpace := pagemanager.SpaceID(9)
	const zipSize = 128
	io.setZipSize(dataSpace, zipSize)
	io.mount(dataSpace, 100*zipSize)

	goodStaged := pageWithIdentity(dataSpace, 10, 0xAA) // full staging-slot width, as the loader always hands back
	staged := []PageFrame{{Space: dataSpace, Page: 10, Data: goodStaged}}
	oracle := &fakeOracle{corrupt: func(buf []byte) bool { return len(buf) > 0 && buf[0] == 0xDE }}

	corruptTarget := make([]byte, zipSize)
	corruptTarget[0] = 0xDE
	require.NoError(t, io.WriteAt(dataSpace, corruptTarget, 10*zipSize))

	require.NoError(t, Repair(staged, io, io, oracle, dblwr.NewTestMetrics(), testLogger()))

	got := make([]byte, zipSize)
	require.NoError(t, io.ReadAt(dataSpace, got, 10*zipSize))
	require.Equal(t, byte(0xAA), got[0])

	nextSlot := make([]byte, zipSize)
	require.NoError(t, io.ReadAt(dataSpace, nextSlot, 11*zipSize))
	require.Equal(t, byte(0), nextSlot[0], "the rewrite must stay within this page's zipSize-wide slot, not spill the full staging-slot width into the next one")
}

func TestRepair_SkipsUnmountedTablespace(t *testing.T) {
	io := newFakeIO()
	frames := []PageFrame{{Space: 999, Page: 1, Data: make([]byte, testPageSize)}}
	require.NoError(t, Repair(frames, io, io, &fakeOracle{}, dblwr.NewTestMetrics(), testLogger()))
}

func TestRepair_FatalWhenBothCopiesCorrupted(t *testing.T) {
	io := newFakeIO()
	dataSpace := pagemanager.SpaceID(9)
	io.mount(dataSpace, 100*testPageSize)

	bad := make([]byte, testPageSize)
	bad[0] = 0xDE
	require.NoError(t, io.WriteAt(dataSpace, bad, 40*testPageSize))

	oracle := &fakeOracle{corrupt: func(buf []byte) bool { return len(buf) > 0 && buf[0] == 0xDE }}
	frames := []PageFrame{{Space: dataSpace, Page: 40, Data: bad}}

	err := Repair(frames, io, io, oracle, dblwr.NewTestMetrics(), testLogger())
	require.Error(t, err)
}
