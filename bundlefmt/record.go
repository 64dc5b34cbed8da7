package bundlefmt

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Variant describes one logical sub-payload of a record (for example, one
// language's worth of localized strings, or one mip level of a texture).
type Variant struct {
	Kind     uint32
	Flag1    uint8
	BodySize uint32
	Flag2    uint8
	TailSize uint32
}

// RecordIter walks a bundle's logical record stream in storage order, the
// same order as its index.
type RecordIter struct {
	dec      *Decompressor
	numFiles uint32
	current  uint32
	prev     *Record
}

// NewRecordIter constructs a record iterator over dec, which must be
// positioned at the start of the first record header (i.e. freshly
// constructed by NewDecompressor).
func NewRecordIter(dec *Decompressor, numFiles uint32) *RecordIter {
	return &RecordIter{dec: dec, numFiles: numFiles}
}

// Next returns the next record, or ok=false once every record has been
// emitted. The previously returned Record is drained of any unread body
// bytes as a side effect, so records must be consumed in order.
func (it *RecordIter) Next() (*Record, bool, error) {
	if it.prev != nil {
		if err := it.prev.discard(); err != nil {
			return nil, false, err
		}
		it.prev = nil
	}

	if it.current >= it.numFiles {
		return nil, false, nil
	}
	it.current++

	var head [20]byte // ext(8) + name(8) + num_variants(4)
	if _, err := io.ReadFull(it.dec, head[:]); err != nil {
		return nil, false, fmt.Errorf("bundlefmt: read record %d header: %w", it.current-1, err)
	}
	ext := binary.LittleEndian.Uint64(head[0:8])
	name := binary.LittleEndian.Uint64(head[8:16])
	numVariants := binary.LittleEndian.Uint32(head[16:20])

	var reserved [4]byte
	if _, err := io.ReadFull(it.dec, reserved[:]); err != nil {
		return nil, false, fmt.Errorf("bundlefmt: read record %d reserved field: %w", it.current-1, err)
	}
	for _, b := range reserved {
		if b != 0 {
			return nil, false, fmt.Errorf("bundlefmt: record %d has non-zero reserved field", it.current-1)
		}
	}

	variants := make([]Variant, numVariants)
	var total uint64
	var vbuf [14]byte
	for i := range variants {
		if _, err := io.ReadFull(it.dec, vbuf[:]); err != nil {
			return nil, false, fmt.Errorf("bundlefmt: read record %d variant %d: %w", it.current-1, i, err)
		}
		kind := binary.LittleEndian.Uint32(vbuf[0:4])
		flag1 := vbuf[4]
		if flag1 > 1 {
			return nil, false, fmt.Errorf("bundlefmt: record %d variant %d: flag1 = %d out of range", it.current-1, i, flag1)
		}
		bodySize := binary.LittleEndian.Uint32(vbuf[5:9])
		flag2 := vbuf[9]
		if flag2 != 1 {
			return nil, false, fmt.Errorf("bundlefmt: record %d variant %d: flag2 = %d, want 1", it.current-1, i, flag2)
		}
		tailSize := binary.LittleEndian.Uint32(vbuf[10:14])

		variants[i] = Variant{Kind: kind, Flag1: flag1, BodySize: bodySize, Flag2: flag2, TailSize: tailSize}
		total += uint64(bodySize) + uint64(tailSize)
	}

	if it.current == it.numFiles {
		if got, want := it.dec.TotalProduced()+total, it.dec.TotalSize(); got != want {
			return nil, false, fmt.Errorf("bundlefmt: logical stream ended at %d bytes, want %d", got, want)
		}
	}

	rec := &Record{dec: it.dec, variants: variants, remaining: total, ext: ext, name: name}
	it.prev = rec
	return rec, true, nil
}

// Record is a borrowed view over one record's body bytes, backed by the
// RecordIter's decompressor. It must be fully consumed (read or discarded)
// before the next call to RecordIter.Next.
type Record struct {
	dec       *Decompressor
	variants  []Variant
	remaining uint64
	ext       uint64
	name      uint64
}

// Ext returns the record's type-tag hash.
func (r *Record) Ext() uint64 { return r.ext }

// Name returns the record's name hash.
func (r *Record) Name() uint64 { return r.name }

// Variants returns the record's variant descriptors.
func (r *Record) Variants() []Variant { return r.variants }

// Remaining reports how many body bytes have not yet been read.
func (r *Record) Remaining() uint64 { return r.remaining }

// Read implements io.Reader over the record's body. remaining is
// decremented only by bytes actually delivered, not by the requested read
// length, so a short read never desynchronizes the record's position
// within the bundle's logical stream.
func (r *Record) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.dec.Read(p)
	r.remaining -= uint64(n)
	return n, err
}

// discard drains any unread body bytes so the decompressor is positioned at
// the start of the next record's header.
func (r *Record) discard() error {
	if r.remaining == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(r.remaining))
	if err != nil {
		return fmt.Errorf("bundlefmt: discard record body: %w", err)
	}
	return nil
}
