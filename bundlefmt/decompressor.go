package bundlefmt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distribution/bundle-extract/codec"
)

// Decompressor turns a bundle's chunk table into a single logical byte
// stream: it pulls one ChunkSize-sized compressed chunk at a time, expands
// it (or copies it verbatim when a chunk is stored raw), and serves reads
// out of the resulting buffer.
//
// A Decompressor holds no buffers of its own; inBuf, outBuf and scratch are
// supplied by the caller so a worker can reuse them across bundles.
type Decompressor struct {
	codec codec.Codec
	rdr   io.ReadSeeker

	inBuf   []byte // exactly ChunkSize
	outBuf  []byte // exactly ChunkSize
	scratch []byte

	offset       int
	totalOut     uint64
	totalSize    uint64
	numChunks    uint32
	currentChunk uint32

	// sizeTable holds the bundle's up-front per-chunk compressed-size
	// table, used to cross-check each chunk's own size prefix as it is
	// read; the two are redundant in a well-formed bundle.
	sizeTable []uint32
}

// NewDecompressor seeks rdr to the start of the chunk table (immediately
// after a bundle's index), reads the chunk-size table and the
// total-decompressed-size trailer, and primes the first chunk.
//
// inBuf and outBuf must each be exactly ChunkSize bytes; scratch must be at
// least c.ScratchSize() bytes.
func NewDecompressor(rdr io.ReadSeeker, numFiles uint32, c codec.Codec, inBuf, outBuf, scratch []byte) (*Decompressor, error) {
	if len(inBuf) != ChunkSize || len(outBuf) != ChunkSize {
		return nil, fmt.Errorf("bundlefmt: inBuf/outBuf must be exactly %d bytes", ChunkSize)
	}

	if _, err := rdr.Seek(indexHeadSize+int64(numFiles)*indexEntrySize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("bundlefmt: seek to chunk table: %w", err)
	}

	var numChunksBuf [4]byte
	if _, err := io.ReadFull(rdr, numChunksBuf[:]); err != nil {
		return nil, fmt.Errorf("bundlefmt: read num_chunks: %w", err)
	}
	numChunks := binary.LittleEndian.Uint32(numChunksBuf[:])

	// The per-chunk size table is redundant with each chunk's own 4-byte
	// prefix; read it into a table so nextChunk can cross-check every
	// chunk's prefix against it.
	sizeTable := make([]uint32, numChunks)
	var sizeBuf [4]byte
	for i := range sizeTable {
		if _, err := io.ReadFull(rdr, sizeBuf[:]); err != nil {
			return nil, fmt.Errorf("bundlefmt: read chunk size table entry %d: %w", i, err)
		}
		sizeTable[i] = binary.LittleEndian.Uint32(sizeBuf[:])
	}

	pos, err := rdr.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if pad := align16(pos); pad > 0 {
		if _, err := rdr.Seek(pad, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("bundlefmt: seek past chunk table padding: %w", err)
		}
	}

	var totalSizeBuf, reservedBuf [4]byte
	if _, err := io.ReadFull(rdr, totalSizeBuf[:]); err != nil {
		return nil, fmt.Errorf("bundlefmt: read total_decompressed_size: %w", err)
	}
	if _, err := io.ReadFull(rdr, reservedBuf[:]); err != nil {
		return nil, fmt.Errorf("bundlefmt: read reserved field: %w", err)
	}
	if reserved := binary.LittleEndian.Uint32(reservedBuf[:]); reserved != 0 {
		return nil, fmt.Errorf("bundlefmt: expected zero reserved field, got %#x", reserved)
	}

	d := &Decompressor{
		codec:      c,
		rdr:        rdr,
		inBuf:      inBuf,
		outBuf:     outBuf,
		scratch:    scratch,
		totalSize:  uint64(binary.LittleEndian.Uint32(totalSizeBuf[:])),
		numChunks:  numChunks,
		sizeTable:  sizeTable,
	}
	if _, err := d.nextChunk(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decompressor) nextChunk() (bool, error) {
	if d.currentChunk >= d.numChunks {
		return false, nil
	}
	d.currentChunk++
	d.offset = 0

	var sizeBuf [4]byte
	if _, err := io.ReadFull(d.rdr, sizeBuf[:]); err != nil {
		return false, fmt.Errorf("bundlefmt: read chunk %d size prefix: %w", d.currentChunk-1, err)
	}
	chunkSize := int(binary.LittleEndian.Uint32(sizeBuf[:]))
	if want := d.sizeTable[d.currentChunk-1]; uint32(chunkSize) != want {
		return false, fmt.Errorf("bundlefmt: chunk %d size prefix %d disagrees with chunk table %d", d.currentChunk-1, chunkSize, want)
	}

	pos, err := d.rdr.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	if pad := align16(pos); pad > 0 {
		if _, err := d.rdr.Seek(pad, io.SeekCurrent); err != nil {
			return false, fmt.Errorf("bundlefmt: seek past chunk %d padding: %w", d.currentChunk-1, err)
		}
	}

	if chunkSize < 0 || chunkSize > ChunkSize {
		return false, fmt.Errorf("bundlefmt: chunk %d has invalid compressed size %d", d.currentChunk-1, chunkSize)
	}
	if _, err := io.ReadFull(d.rdr, d.inBuf[:chunkSize]); err != nil {
		return false, fmt.Errorf("bundlefmt: read chunk %d body: %w", d.currentChunk-1, err)
	}

	if chunkSize == ChunkSize {
		copy(d.outBuf, d.inBuf)
	} else {
		if err := d.codec.Decompress(d.inBuf[:chunkSize], d.outBuf, d.scratch); err != nil {
			return false, fmt.Errorf("bundlefmt: decompress chunk %d: %w", d.currentChunk-1, err)
		}
	}
	return true, nil
}

// Read implements io.Reader, yielding the concatenation of all decompressed
// chunks. It returns io.EOF once totalSize bytes have been produced.
func (d *Decompressor) Read(p []byte) (int, error) {
	fill := len(p)
	read := 0

	for fill > 0 {
		if d.offset == ChunkSize {
			more, err := d.nextChunk()
			if err != nil {
				return read, err
			}
			if !more {
				break
			}
		}

		var chunkLen int
		if d.currentChunk == d.numChunks {
			rem := int(d.totalSize % ChunkSize)
			if rem == 0 {
				rem = ChunkSize
			}
			chunkLen = rem
		} else {
			chunkLen = ChunkSize
		}

		avail := chunkLen - d.offset
		if avail <= 0 {
			break
		}
		n := avail
		if n > fill {
			n = fill
		}
		copy(p[read:read+n], d.outBuf[d.offset:d.offset+n])
		d.offset += n
		d.totalOut += uint64(n)
		read += n
		fill -= n
	}

	if read == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return read, nil
}

// TotalProduced reports how many logical bytes have been read so far.
func (d *Decompressor) TotalProduced() uint64 { return d.totalOut }

// TotalSize reports the bundle's declared total decompressed size.
func (d *Decompressor) TotalSize() uint64 { return d.totalSize }
