package dblwr

import (
	"testing"

	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	h := &Header{Fseg: [FsegHeaderSize]byte{1, 2, 3}}
	h.Stamp(pagemanager.PageID(64), pagemanager.PageID(128))

	buf, err := EncodeHeader(h)
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)

	decoded, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, decoded)
	require.True(t, decoded.Valid())
}

func TestHeader_ValidRequiresBothMagicCopies(t *testing.T) {
	h := &Header{}
	require.False(t, h.Valid())

	h.Magic = MagicN
	require.False(t, h.Valid(), "one magic copy alone is not enough")

	h.RepeatMagic = MagicN
	require.True(t, h.Valid())
}

func TestReadWriteHeader_RoundTrip(t *testing.T) {
	io := newFakeIO()
	sysSpace := pagemanager.SpaceID(0)

	h := &Header{}
	h.Stamp(pagemanager.PageID(64), pagemanager.PageID(128))
	require.NoError(t, WriteHeader(io, sysSpace, 38, h))
	require.Equal(t, 1, io.flushes, "WriteHeader must fsync the header write")

	got, err := ReadHeader(io, sysSpace, 38)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecodeHeader_RejectsWrongSize(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
}
