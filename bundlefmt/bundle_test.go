package bundlefmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// noopCodec never actually runs: every chunk in these tests is exactly
// ChunkSize bytes and is therefore stored raw, per the format's rule that a
// chunk whose compressed size equals ChunkSize is copied verbatim.
type noopCodec struct{}

func (noopCodec) Decompress(in, out, scratch []byte) error {
	return errors.New("noopCodec: Decompress should never be called in this test")
}
func (noopCodec) ScratchSize() uint64 { return 0 }
func (noopCodec) Close() error        { return nil }

type recordSpec struct {
	ext, name uint64
	variants  []Variant
	body      []byte
}

// buildBundle assembles a minimal valid bundle containing the given records,
// packed into full ChunkSize-sized raw chunks. It adds no padding: the
// caller sizes the last record's body so the logical stream is an exact
// multiple of ChunkSize, and the test fails otherwise.
func buildBundle(t *testing.T, records []recordSpec) []byte {
	t.Helper()

	var logical bytes.Buffer
	for _, r := range records {
		var head [16]byte
		binary.LittleEndian.PutUint64(head[0:8], r.ext)
		binary.LittleEndian.PutUint64(head[8:16], r.name)
		logical.Write(head[:])
		var nv [4]byte
		binary.LittleEndian.PutUint32(nv[:], uint32(len(r.variants)))
		logical.Write(nv[:])
		logical.Write(make([]byte, 4)) // reserved

		for _, v := range r.variants {
			var vb [14]byte
			binary.LittleEndian.PutUint32(vb[0:4], v.Kind)
			vb[4] = v.Flag1
			binary.LittleEndian.PutUint32(vb[5:9], v.BodySize)
			vb[9] = v.Flag2
			binary.LittleEndian.PutUint32(vb[10:14], v.TailSize)
			logical.Write(vb[:])
		}
		logical.Write(r.body)
	}

	if logical.Len()%ChunkSize != 0 {
		t.Fatalf("test bundle logical size %d must be a multiple of ChunkSize; pad the last record's tail", logical.Len())
	}
	numChunks := logical.Len() / ChunkSize
	logicalBytes := logical.Bytes()

	var out bytes.Buffer
	out.Write(magic[:])
	var nf [4]byte
	binary.LittleEndian.PutUint32(nf[:], uint32(len(records)))
	out.Write(nf[:])
	out.Write(make([]byte, indexPadding))

	for _, r := range records {
		var e [indexEntrySize]byte
		binary.LittleEndian.PutUint64(e[0:8], r.ext)
		binary.LittleEndian.PutUint64(e[8:16], r.name)
		out.Write(e[:])
	}

	var ncBuf [4]byte
	binary.LittleEndian.PutUint32(ncBuf[:], uint32(numChunks))
	out.Write(ncBuf[:])
	for i := 0; i < numChunks; i++ {
		var cs [4]byte
		binary.LittleEndian.PutUint32(cs[:], ChunkSize)
		out.Write(cs[:])
	}
	if pad := align16(int64(out.Len())); pad > 0 {
		out.Write(make([]byte, pad))
	}

	var totalSize [4]byte
	binary.LittleEndian.PutUint32(totalSize[:], uint32(logical.Len()))
	out.Write(totalSize[:])
	out.Write(make([]byte, 4)) // reserved zero

	for i := 0; i < numChunks; i++ {
		var cs [4]byte
		binary.LittleEndian.PutUint32(cs[:], ChunkSize)
		out.Write(cs[:])
		if pad := align16(int64(out.Len())); pad > 0 {
			out.Write(make([]byte, pad))
		}
		out.Write(logicalBytes[i*ChunkSize : (i+1)*ChunkSize])
	}

	return out.Bytes()
}

func TestRoundTripTwoRecords(t *testing.T) {
	body1 := []byte("hello")
	tailPad := ChunkSize - 16 - 4 - 4 - 14 - len(body1) - 16 - 4 - 4 - 14
	body2 := make([]byte, tailPad)
	for i := range body2 {
		body2[i] = byte(i)
	}

	records := []recordSpec{
		{
			ext: 0x1111, name: 0xAAAA,
			variants: []Variant{{Kind: 0, Flag1: 0, BodySize: uint32(len(body1)), Flag2: 1, TailSize: 0}},
			body:     body1,
		},
		{
			ext: 0x2222, name: 0xBBBB,
			variants: []Variant{{Kind: 0, Flag1: 0, BodySize: uint32(len(body2)), Flag2: 1, TailSize: 0}},
			body:     body2,
		},
	}

	data := buildBundle(t, records)
	rdr := bytes.NewReader(data)

	b, err := Open(rdr, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.NumFiles != 2 {
		t.Fatalf("NumFiles = %d, want 2", b.NumFiles)
	}

	idx := b.Index()
	var entries []IndexEntry
	for {
		e, ok, err := idx.Next()
		if err != nil {
			t.Fatalf("index.Next: %v", err)
		}
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 || entries[0].Ext != 0x1111 || entries[1].Name != 0xBBBB {
		t.Fatalf("unexpected index entries: %+v", entries)
	}

	inBuf := make([]byte, ChunkSize)
	outBuf := make([]byte, ChunkSize)
	it, err := b.Records(noopCodec{}, inBuf, outBuf, nil)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}

	rec1, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next() rec1 = %v, %v, %v", rec1, ok, err)
	}
	if rec1.Ext() != 0x1111 || rec1.Name() != 0xAAAA {
		t.Fatalf("rec1 identity = %x/%x", rec1.Ext(), rec1.Name())
	}
	got1, err := io.ReadAll(rec1)
	if err != nil {
		t.Fatalf("read rec1: %v", err)
	}
	if !bytes.Equal(got1, body1) {
		t.Fatalf("rec1 body = %v, want %v", got1, body1)
	}

	// Next() must discard the remainder of rec1 (none left, since it was
	// read to EOF above) and rec2 must read correctly.
	rec2, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next() rec2 = %v, %v, %v", rec2, ok, err)
	}
	got2, err := io.ReadAll(rec2)
	if err != nil {
		t.Fatalf("read rec2: %v", err)
	}
	if !bytes.Equal(got2, body2) {
		t.Fatalf("rec2 body mismatch, len got=%d want=%d", len(got2), len(body2))
	}

	done, ok, err := it.Next()
	if err != nil || ok {
		t.Fatalf("Next() after last record = %v, %v, %v", done, ok, err)
	}
}

func TestPartialReadIsDiscardedBeforeNextRecord(t *testing.T) {
	body1 := bytes.Repeat([]byte{0x42}, 100)
	tailPad := ChunkSize - 16 - 4 - 4 - 14 - len(body1) - 16 - 4 - 4 - 14
	body2 := bytes.Repeat([]byte{0x24}, tailPad)

	records := []recordSpec{
		{ext: 1, name: 2, variants: []Variant{{BodySize: uint32(len(body1)), Flag2: 1}}, body: body1},
		{ext: 3, name: 4, variants: []Variant{{BodySize: uint32(len(body2)), Flag2: 1}}, body: body2},
	}
	data := buildBundle(t, records)

	b, err := Open(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	it, err := b.Records(noopCodec{}, make([]byte, ChunkSize), make([]byte, ChunkSize), nil)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}

	rec1, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next rec1: %v %v %v", rec1, ok, err)
	}
	// Only read the first 10 bytes, leaving 90 bytes unread.
	buf := make([]byte, 10)
	if _, err := io.ReadFull(rec1, buf); err != nil {
		t.Fatalf("partial read: %v", err)
	}

	rec2, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next rec2 after partial read of rec1: %v %v %v", rec2, ok, err)
	}
	got2, err := io.ReadAll(rec2)
	if err != nil {
		t.Fatalf("read rec2: %v", err)
	}
	if !bytes.Equal(got2, body2) {
		t.Fatalf("rec2 misaligned after rec1 was only partially read")
	}
}

func TestBadMagicRejected(t *testing.T) {
	data := make([]byte, 16)
	copy(data, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0})
	if _, err := Open(bytes.NewReader(data), nil); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
