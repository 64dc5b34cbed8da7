// Package bundlefmt decodes the bundle container format: a small header and
// index followed by a sequence of fixed-size compressed chunks that, once
// decompressed and concatenated, hold a flat stream of records.
package bundlefmt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distribution/bundle-extract/codec"
)

// ChunkSize is the fixed decompressed size of every chunk except possibly
// the last one.
const ChunkSize = 0x80000

var magic = [8]byte{0x07, 0x00, 0x00, 0xF0, 0x03, 0x00, 0x00, 0x00}

const (
	headerSize    = 8 + 4 // magic + num_files
	indexPadding  = 256
	indexHeadSize = headerSize + indexPadding
	indexEntrySize = 20
)

// IndexEntry identifies one record without decompressing any chunk data.
type IndexEntry struct {
	Ext  uint64
	Name uint64
	Mode uint32
}

// Bundle is an opened bundle container, positioned to read its index or its
// record stream.
type Bundle struct {
	rdr      io.ReadSeeker
	NumFiles uint32

	// Hash optionally identifies this bundle (the 64-bit hash of its
	// filename) for use in diagnostics.
	Hash *uint64
}

// Open reads and validates the bundle header. hash, if non-nil, is carried
// through for error messages only.
func Open(rdr io.ReadSeeker, hash *uint64) (*Bundle, error) {
	var header [8]byte
	if _, err := io.ReadFull(rdr, header[:]); err != nil {
		return nil, fmt.Errorf("bundlefmt: read header: %w", err)
	}
	if header != magic {
		return nil, fmt.Errorf("bundlefmt: bad magic %x", header)
	}

	var numFilesBuf [4]byte
	if _, err := io.ReadFull(rdr, numFilesBuf[:]); err != nil {
		return nil, fmt.Errorf("bundlefmt: read num_files: %w", err)
	}

	return &Bundle{
		rdr:      rdr,
		NumFiles: binary.LittleEndian.Uint32(numFilesBuf[:]),
		Hash:     hash,
	}, nil
}

func (b *Bundle) identity() string {
	if b.Hash != nil {
		return fmt.Sprintf("%016x", *b.Hash)
	}
	return "anonymous bundle"
}

// Index returns an iterator over the bundle's flat index of (ext, name,
// mode) triples. It seeks the underlying reader; callers must finish using
// it (or discard it) before reading records.
func (b *Bundle) Index() *IndexIter {
	return newIndexIter(b.rdr, b.NumFiles)
}

// IndexIter iterates a bundle's index entries in storage order.
type IndexIter struct {
	rdr      io.ReadSeeker
	numFiles uint32
	offset   uint32
	err      error
}

func newIndexIter(rdr io.ReadSeeker, numFiles uint32) *IndexIter {
	if _, err := rdr.Seek(indexHeadSize, io.SeekStart); err != nil {
		return &IndexIter{err: err}
	}
	return &IndexIter{rdr: rdr, numFiles: numFiles}
}

// Next returns the next index entry, or ok=false once the index is
// exhausted (with err nil) or a read error occurred (with err set).
func (it *IndexIter) Next() (entry IndexEntry, ok bool, err error) {
	if it.err != nil {
		return IndexEntry{}, false, it.err
	}
	if it.offset >= it.numFiles {
		return IndexEntry{}, false, nil
	}
	it.offset++

	var buf [indexEntrySize]byte
	if _, err := io.ReadFull(it.rdr, buf[:]); err != nil {
		it.err = fmt.Errorf("bundlefmt: read index entry %d: %w", it.offset-1, err)
		return IndexEntry{}, false, it.err
	}

	return IndexEntry{
		Ext:  binary.LittleEndian.Uint64(buf[0:8]),
		Name: binary.LittleEndian.Uint64(buf[8:16]),
		Mode: binary.LittleEndian.Uint32(buf[16:20]),
	}, true, nil
}

// Records constructs a streaming decompressor positioned at the start of
// the record stream and wraps it in a RecordIter. inBuf and outBuf must
// each be exactly ChunkSize bytes; scratch must be at least
// c.ScratchSize() bytes. All three are caller-owned and reused across
// bundles.
func (b *Bundle) Records(c codec.Codec, inBuf, outBuf, scratch []byte) (*RecordIter, error) {
	dec, err := NewDecompressor(b.rdr, b.NumFiles, c, inBuf, outBuf, scratch)
	if err != nil {
		return nil, fmt.Errorf("bundlefmt: %s: %w", b.identity(), err)
	}
	return NewRecordIter(dec, b.NumFiles), nil
}

func align16(offset int64) int64 {
	rem := offset % 16
	if rem == 0 {
		return 0
	}
	return 16 - rem
}
