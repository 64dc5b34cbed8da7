package extractors

import (
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/dispatch"
	"github.com/distribution/bundle-extract/hashutil"
)

func init() {
	dispatch.Register(hashutil.Hash64A([]byte("bones")), skeletonExtractor{})
}

// skeletonExtractor writes "<stem>.bones.json": an ordered LOD list and the
// NUL-terminated bone name table.
type skeletonExtractor struct{}

func (skeletonExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	if len(rec.Variants()) != 1 {
		return 0, fmt.Errorf("extractors: bones record %016x has %d variants, want 1", rec.Name(), len(rec.Variants()))
	}

	var head [8]byte
	if _, err := io.ReadFull(rec, head[:]); err != nil {
		return 0, fmt.Errorf("extractors: bones: read header: %w", err)
	}
	numBones := binary.LittleEndian.Uint32(head[0:4])
	numLods := binary.LittleEndian.Uint32(head[4:8])

	if _, err := io.CopyN(io.Discard, rec, int64(numBones)*4); err != nil {
		return 0, fmt.Errorf("extractors: bones: skip short hashes: %w", err)
	}

	pool.GrowFlex(0)
	buf := pool.Flex[:0]
	buf = append(buf, `{"lod":[`...)
	var lodBuf [4]byte
	for i := uint32(0); i < numLods; i++ {
		if _, err := io.ReadFull(rec, lodBuf[:]); err != nil {
			return 0, fmt.Errorf("extractors: bones: read lod %d: %w", i, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, fmt.Sprintf("%d", binary.LittleEndian.Uint32(lodBuf[:]))...)
	}
	buf = append(buf, `],"bones":[`...)

	var name []byte
	var b [1]byte
	for i := uint32(0); i < numBones; i++ {
		name = name[:0]
		for {
			if _, err := io.ReadFull(rec, b[:]); err != nil {
				return 0, fmt.Errorf("extractors: bones: read bone name %d: %w", i, err)
			}
			if b[0] == 0 {
				break
			}
			name = append(name, b[0])
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, jsonEscape(string(name))...)
		buf = append(buf, '"')
	}
	buf = append(buf, `]}`...)
	pool.Flex = buf

	stem := strings.TrimSuffix(path.Base(outPath), path.Ext(outPath))
	bonesPath := path.Join(path.Dir(outPath), stem+".bones.json")

	if err := opts.Writer.PutContent(bonesPath, pool.Flex); err != nil {
		return 0, fmt.Errorf("extractors: bones: write %s: %w", bonesPath, err)
	}
	return uint64(len(pool.Flex)), nil
}
