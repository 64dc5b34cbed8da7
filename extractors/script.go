// Package extractors implements the concrete per-type record transforms
// registered with the dispatch package.
package extractors

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/dispatch"
)

// scriptExt is the type-tag hash of a LuaJIT bytecode record.
const scriptExt uint64 = 0xa14e8dfa2cd117e2

func init() {
	dispatch.Register(scriptExt, scriptExtractor{})
}

const (
	luaHeaderMagicBE    = 38423579
	luaHeaderMagicOther = 2186495515
)

// scriptExtractor drops the 12-byte prefix in front of a LuaJIT bytecode
// blob, rewrites the header with the luaHeaderMagicBE magic and the same
// "@path" source name it found there (the path itself is not changed), then
// streams the remaining bytecode through unmodified.
// The embedded path is also used as the output file's path,
// mirroring the reference tool's behavior of trusting the bytecode's own
// recorded source name over the bundle's hash-resolved name.
type scriptExtractor struct{}

func (scriptExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	if len(rec.Variants()) != 1 {
		return 0, fmt.Errorf("extractors: script record %016x has %d variants, want 1", rec.Name(), len(rec.Variants()))
	}

	var skip [12]byte
	if _, err := io.ReadFull(rec, skip[:]); err != nil {
		return 0, fmt.Errorf("extractors: script: read prefix: %w", err)
	}

	var headerBuf [4]byte
	if _, err := io.ReadFull(rec, headerBuf[:]); err != nil {
		return 0, fmt.Errorf("extractors: script: read header: %w", err)
	}
	header := binary.LittleEndian.Uint32(headerBuf[:])
	if header != luaHeaderMagicBE && header != luaHeaderMagicOther {
		return 0, fmt.Errorf("extractors: script %016x has unexpected header %08x", rec.Name(), header)
	}

	var zero [1]byte
	if _, err := io.ReadFull(rec, zero[:]); err != nil || zero[0] != 0 {
		return 0, fmt.Errorf("extractors: script %016x: expected zero byte after header", rec.Name())
	}

	pathLen, err := readULEB128(rec)
	if err != nil {
		return 0, fmt.Errorf("extractors: script: read path length: %w", err)
	}

	var at [1]byte
	if _, err := io.ReadFull(rec, at[:]); err != nil || at[0] != '@' {
		return 0, fmt.Errorf("extractors: script %016x: expected '@' before embedded path", rec.Name())
	}

	pathBytes := make([]byte, pathLen-1)
	if _, err := io.ReadFull(rec, pathBytes); err != nil {
		return 0, fmt.Errorf("extractors: script: read embedded path: %w", err)
	}
	luaPath := string(pathBytes)

	pool.GrowFlex(0)
	out := pool.Flex[:0]
	var headerOut [4]byte
	binary.LittleEndian.PutUint32(headerOut[:], luaHeaderMagicBE)
	out = append(out, headerOut[:]...)
	out = append(out, 0)
	out = appendULEB128(out, pathLen)
	out = append(out, '@')
	out = append(out, pathBytes...)
	pool.Flex = out

	wc, err := opts.Writer.Create(luaPath)
	if err != nil {
		return 0, err
	}
	defer wc.Close()

	if _, err := wc.Write(pool.Flex); err != nil {
		return 0, fmt.Errorf("extractors: script: write header: %w", err)
	}
	written := uint64(len(pool.Flex))

	n, err := io.Copy(wc, rec)
	if err != nil {
		return 0, fmt.Errorf("extractors: script: write body: %w", err)
	}
	_ = outPath // the dictionary-resolved path is superseded by the embedded one
	return written + uint64(n), nil
}

func readULEB128(r io.Reader) (uint64, error) {
	var result uint64
	var shift uint
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		result |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func appendULEB128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst
		}
	}
}
