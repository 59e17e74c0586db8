package dblwr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

// FsegHeaderSize is the width of the opaque file-segment header the
// allocator anchors in the trx-sys page. The doublewrite header never
// interprets these bytes itself — they belong to whatever segment
// allocator backs Bootstrap.
const FsegHeaderSize = 10

// MagicN is the doublewrite header's validity marker. Two independent
// copies (Magic and RepeatMagic) must both equal it for the header to be
// considered present.
const MagicN uint32 = 536853855

// SpaceIDsStoredN marks a header written by a version that stamps a space
// id alongside every staged page. Anything else is treated as a legacy
// header needing the one-time space-id-zeroing upgrade.
const SpaceIDsStoredN uint32 = 1

// HeaderSize is the on-disk width of Header, fixed so ReadHeader/WriteHeader
// never depend on encoding/binary's struct layout guesses.
const HeaderSize = 4 + FsegHeaderSize + 4 + 4 + 4 + 4 + 4 + 4

// Header is the doublewrite header persisted at a fixed byte offset inside
// the trx-sys page.
type Header struct {
	Magic          uint32
	Fseg           [FsegHeaderSize]byte
	Block1         uint32
	Block2         uint32
	RepeatMagic    uint32
	RepeatBlock1   uint32
	RepeatBlock2   uint32
	SpaceIDsStored uint32
}

// Valid reports whether both magic copies match MagicN — the sole
// detection rule for "the doublewrite area already exists".
func (h *Header) Valid() bool {
	return h.Magic == MagicN && h.RepeatMagic == MagicN
}

// Stamp fills in both magic copies, the block pointers and
// SpaceIDsStoredN, leaving Fseg untouched (the allocator writes that
// separately as part of segment creation).
func (h *Header) Stamp(block1, block2 pagemanager.PageID) {
	h.Magic = MagicN
	h.RepeatMagic = MagicN
	h.Block1 = uint32(block1)
	h.Block2 = uint32(block2)
	h.RepeatBlock1 = uint32(block1)
	h.RepeatBlock2 = uint32(block2)
	h.SpaceIDsStored = SpaceIDsStoredN
}

// EncodeHeader serializes h into a HeaderSize-byte buffer, little-endian,
// the way diskmanager.go's writeHeader serializes DBFileHeader.
func EncodeHeader(h *Header) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("encode doublewrite header: %w", err)
	}
	if buf.Len() != HeaderSize {
		return nil, fmt.Errorf("encoded doublewrite header is %d bytes, want %d", buf.Len(), HeaderSize)
	}
	return buf.Bytes(), nil
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) != HeaderSize {
		return nil, fmt.Errorf("doublewrite header buffer is %d bytes, want %d", len(data), HeaderSize)
	}
	h := new(Header)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("decode doublewrite header: %w", err)
	}
	return h, nil
}

// ReadHeader reads and decodes the header at byteOffset within space's
// trx-sys page via the FileIO port.
func ReadHeader(io FileIO, space pagemanager.SpaceID, byteOffset int64) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if err := io.ReadAt(space, buf, byteOffset); err != nil {
		return nil, fmt.Errorf("read doublewrite header: %w", err)
	}
	return DecodeHeader(buf)
}

// WriteHeader encodes and writes h at byteOffset, then fsyncs the
// tablespace — the header write is the durability point bootstrap depends
// on, so it is never left buffered.
func WriteHeader(io FileIO, space pagemanager.SpaceID, byteOffset int64, h *Header) error {
	buf, err := EncodeHeader(h)
	if err != nil {
		return err
	}
	if err := io.WriteAt(space, buf, byteOffset); err != nil {
		return fmt.Errorf("write doublewrite header: %w", err)
	}
	return io.Flush(space)
}
