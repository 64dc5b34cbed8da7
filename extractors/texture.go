package extractors

import (
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/chunkreader"
	"github.com/distribution/bundle-extract/dispatch"
)

// textureExt is the type-tag hash of a texture record, hardcoded the same
// way the lua/script type tag is: these two are the only ones the reference
// tool's dispatcher ever special-cases by literal constant rather than by
// hashing a known extension name.
const textureExt uint64 = 0xcd4238c6a0c69e32

func init() {
	dispatch.Register(textureExt, textureExtractor{})
}

const (
	ddsHeaderSize    = 128
	dxt10HeaderSize  = 20
	ddsAndDXT10Size  = ddsHeaderSize + dxt10HeaderSize // 148
	dataPathFieldLen = 31
	fourCCDX10       = 0x44583130 // "DX10", byte-swapped in the on-disk header
)

// textureExtractor reassembles a DDS texture. The Kraken-compressed DDS
// header is read from the record body, or, when the prime variant's Flag1 is
// 1, from the file a data-path in the record body names. When Flag1 is 0,
// TailSize is non-zero and the header carries a meta block, a side-stream of
// additional Kraken-compressed 64KiB chunks referenced by a second data-path
// is decompressed and interleaved into the final mip surface row by row.
type textureExtractor struct{}

func (textureExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	variants := rec.Variants()
	if len(variants) != 1 {
		return 0, fmt.Errorf("extractors: texture record %016x has %d variants, want 1", rec.Name(), len(variants))
	}
	prime := variants[0]
	hasHighRes := prime.Flag1 == 0 && prime.TailSize > 0

	var src io.Reader
	switch prime.Flag1 {
	case 0:
		src = rec
	case 1:
		if prime.TailSize != 0 {
			return 0, fmt.Errorf("extractors: texture %016x: tail_size must be 0 when flag1=1", rec.Name())
		}
		dataPath, err := readDataPath(rec, dataPathFieldLen)
		if err != nil {
			return 0, fmt.Errorf("extractors: texture: %w", err)
		}
		f, err := openDataPathFile(opts, dataPath)
		if err != nil {
			return 0, fmt.Errorf("extractors: texture %016x references %q: %w", rec.Name(), dataPath, err)
		}
		defer f.Close()
		src = chunkreader.New(make([]byte, 0x10000), f)
	default:
		return 0, fmt.Errorf("extractors: texture %016x: unexpected flag1 %d", rec.Name(), prime.Flag1)
	}

	kind, err := readU32LE(src)
	if err != nil {
		return 0, fmt.Errorf("extractors: texture: read kind: %w", err)
	}
	if kind != 0 && kind != 1 {
		return 0, fmt.Errorf("extractors: texture %016x: unexpected kind %d", rec.Name(), kind)
	}
	if kind == 0 {
		return 0, fmt.Errorf("extractors: texture %016x: uncompressed texture kind not supported", rec.Name())
	}

	deflateSize, err := readU32LE(src)
	if err != nil {
		return 0, err
	}
	inflateSize, err := readU32LE(src)
	if err != nil {
		return 0, err
	}
	if inflateSize < ddsAndDXT10Size {
		return 0, fmt.Errorf("extractors: texture %016x: inflate size %d too small", rec.Name(), inflateSize)
	}

	inBuf := make([]byte, deflateSize)
	outBuf := make([]byte, inflateSize)
	scratch := make([]byte, opts.Codec.ScratchSize())
	if _, err := io.ReadFull(src, inBuf); err != nil {
		return 0, fmt.Errorf("extractors: texture: read payload: %w", err)
	}
	if err := opts.Codec.Decompress(inBuf, outBuf, scratch); err != nil {
		return 0, fmt.Errorf("extractors: texture: decompress header: %w", err)
	}

	fourcc := binary.LittleEndian.Uint32(outBuf[84:88])

	magic, err := readU32LE(src)
	if err != nil || magic != 67 {
		return 0, fmt.Errorf("extractors: texture %016x: expected magic 67, got %d (err=%v)", rec.Name(), magic, err)
	}
	if _, err := readU32LE(src); err != nil { // unknown
		return 0, err
	}
	if _, err := readU32LE(src); err != nil { // num_mipmaps
		return 0, err
	}
	largestWidth, err := readU32LE(src)
	if err != nil {
		return 0, err
	}
	largestHeight, err := readU32LE(src)
	if err != nil {
		return 0, err
	}

	var skip [128]byte
	if _, err := io.ReadFull(src, skip[:]); err != nil {
		return 0, fmt.Errorf("extractors: texture: read skip block: %w", err)
	}

	metaSizeRaw, err := readU32LE(src)
	if err != nil {
		return 0, err
	}
	if metaSizeRaw > 0xffff {
		return 0, fmt.Errorf("extractors: texture %016x: meta size %d out of range", rec.Name(), metaSizeRaw)
	}
	metaSize := uint16(metaSizeRaw)

	stem := strings.TrimSuffix(path.Base(outPath), path.Ext(outPath))
	ddsPath := path.Join(path.Dir(outPath), stem+".dds")

	if metaSize == 0 {
		if _, err := readU32LE(src); err != nil { // unknown trailer
			return 0, err
		}
		wc, err := opts.Writer.Create(ddsPath)
		if err != nil {
			return 0, err
		}
		defer wc.Close()
		if _, err := wc.Write(outBuf); err != nil {
			return 0, fmt.Errorf("extractors: texture: write %s: %w", ddsPath, err)
		}
		return uint64(len(outBuf)), nil
	}

	if !hasHighRes {
		return 0, fmt.Errorf("extractors: texture %016x: meta_size %d implies high-resolution data but prime variant doesn't carry it", rec.Name(), metaSize)
	}
	if fourcc != fourCCDX10 {
		return 0, fmt.Errorf("extractors: texture %016x: expected DX10 fourcc, got %08x", rec.Name(), fourcc)
	}

	dxt10 := outBuf[128:148]
	dimension := binary.LittleEndian.Uint32(dxt10[4:8])
	arraySize := binary.LittleEndian.Uint32(dxt10[12:16])
	if dimension != 3 {
		return 0, fmt.Errorf("extractors: texture %016x: expected DXT10 dimension 3, got %d", rec.Name(), dimension)
	}
	if arraySize != 1 {
		return 0, fmt.Errorf("extractors: texture %016x: expected DXT10 array_size 1, got %d", rec.Name(), arraySize)
	}

	numChunksRaw, err := readU32LE(src)
	if err != nil {
		return 0, err
	}
	if numChunksRaw > 0xffff {
		return 0, fmt.Errorf("extractors: texture %016x: num_chunks %d out of range", rec.Name(), numChunksRaw)
	}
	numChunks := uint16(numChunksRaw)
	if want := uint32(8 + uint32(numChunks)*4); want != uint32(metaSize) {
		return 0, fmt.Errorf("extractors: texture %016x: meta_size %d != 8+4*num_chunks (%d)", rec.Name(), metaSize, want)
	}

	zero, err := readU16LE(src)
	if err != nil || zero != 0 {
		return 0, fmt.Errorf("extractors: texture %016x: expected zero u16 before chunk count, got %d (err=%v)", rec.Name(), zero, err)
	}
	repeat, err := readU16LE(src)
	if err != nil || repeat != numChunks {
		return 0, fmt.Errorf("extractors: texture %016x: chunk count mismatch %d != %d (err=%v)", rec.Name(), repeat, numChunks, err)
	}

	chunkSizes := make([]uint32, numChunks)
	var last uint32
	for i := range chunkSizes {
		next, err := readU32LE(src)
		if err != nil {
			return 0, err
		}
		if next <= last {
			return 0, fmt.Errorf("extractors: texture %016x: chunk offset table not strictly increasing", rec.Name())
		}
		chunkSizes[i] = next - last
		last = next
	}
	if _, err := readU32LE(src); err != nil { // unknown trailer
		return 0, err
	}

	streamPath, err := readDataPath(src, dataPathFieldLen)
	if err != nil {
		return 0, fmt.Errorf("extractors: texture: read side-stream data path: %w", err)
	}

	baseWidth := binary.LittleEndian.Uint32(outBuf[16:20])
	basePitch := binary.LittleEndian.Uint32(outBuf[20:24])
	if baseWidth == 0 {
		return 0, fmt.Errorf("extractors: texture %016x: base width is zero", rec.Name())
	}
	blockSize := 4 * basePitch / baseWidth

	pitch := largestWidth / 4 * blockSize
	flags := binary.LittleEndian.Uint32(outBuf[8:12])
	flags &^= 0x20000
	binary.LittleEndian.PutUint32(outBuf[8:12], flags)
	binary.LittleEndian.PutUint32(outBuf[12:16], largestHeight)
	binary.LittleEndian.PutUint32(outBuf[16:20], largestWidth)
	binary.LittleEndian.PutUint32(outBuf[20:24], pitch)
	binary.LittleEndian.PutUint32(outBuf[28:32], 0)

	wc, err := opts.Writer.Create(ddsPath)
	if err != nil {
		return 0, err
	}
	defer wc.Close()
	if _, err := wc.Write(outBuf[:ddsAndDXT10Size]); err != nil {
		return 0, fmt.Errorf("extractors: texture: write dds header: %w", err)
	}
	wrote := uint64(ddsAndDXT10Size)

	var chunkWidthPixel uint32
	switch blockSize {
	case 8:
		chunkWidthPixel = 128
	case 16:
		chunkWidthPixel = 64
	default:
		return 0, fmt.Errorf("extractors: texture %016x: unexpected block size %d", rec.Name(), blockSize)
	}
	if chunkWidthPixel == 0 || largestHeight == 0 {
		return 0, fmt.Errorf("extractors: texture %016x: invalid dimensions", rec.Name())
	}
	chunkWidth := largestWidth / chunkWidthPixel / 4
	chunkHeight := largestHeight / 64 / 4
	numMipChunks := chunkWidth * chunkHeight
	if chunkWidth == 0 || uint32(len(chunkSizes)) < numMipChunks {
		return 0, fmt.Errorf("extractors: texture %016x: chunk table too short (%d < %d)", rec.Name(), len(chunkSizes), numMipChunks)
	}

	dataFile, err := openDataPathFile(opts, streamPath)
	if err != nil {
		return 0, fmt.Errorf("extractors: texture %016x references %q: %w", rec.Name(), streamPath, err)
	}
	defer dataFile.Close()
	dataRdr := chunkreader.New(make([]byte, 0x10000), dataFile)

	windowSize := int(pitch) * 64
	window := make([]byte, windowSize)
	chunkOutBuf := make([]byte, 0x10000)
	chunkScratch := make([]byte, opts.Codec.ScratchSize())

	rowSize := int(chunkWidthPixel * blockSize)
	for i := uint32(0); i < numMipChunks; i++ {
		chunkIn := make([]byte, chunkSizes[i])
		if _, err := io.ReadFull(dataRdr, chunkIn); err != nil {
			return 0, fmt.Errorf("extractors: texture: read side-stream chunk %d: %w", i, err)
		}
		if err := opts.Codec.Decompress(chunkIn, chunkOutBuf, chunkScratch); err != nil {
			return 0, fmt.Errorf("extractors: texture: decompress side-stream chunk %d: %w", i, err)
		}

		if i > 0 && i%chunkWidth == 0 {
			if _, err := wc.Write(window); err != nil {
				return 0, fmt.Errorf("extractors: texture: write window: %w", err)
			}
			wrote += uint64(len(window))
		}

		if int(pitch/chunkWidth) != len(chunkOutBuf)/64 {
			return 0, fmt.Errorf("extractors: texture %016x: chunk %d geometry mismatch", rec.Name(), i)
		}

		chunkX := int((i % chunkWidth) * chunkWidthPixel * blockSize)
		for rowI := 0; rowI*rowSize+rowSize <= len(chunkOutBuf); rowI++ {
			row := chunkOutBuf[rowI*rowSize : rowI*rowSize+rowSize]
			start := chunkX + rowI*int(pitch)
			copy(window[start:start+rowSize], row)
		}
	}
	if _, err := wc.Write(window); err != nil {
		return 0, fmt.Errorf("extractors: texture: write final window: %w", err)
	}
	wrote += uint64(len(window))

	_ = pool // scratch buffers are record-sized here rather than pool-carved, since texture payloads vary far more than other record kinds
	return wrote, nil
}

func readU32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU16LE(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
