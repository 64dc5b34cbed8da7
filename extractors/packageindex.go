package extractors

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/dispatch"
	"github.com/distribution/bundle-extract/hashutil"
)

func init() {
	dispatch.Register(hashutil.Hash64A([]byte("package")), packageIndexExtractor{})
}

// packageIndexExtractor lists a package record's member resources
// (ext/name hash pairs, resolved through the dictionary and static
// extension table where possible) as a JSON array.
type packageIndexExtractor struct{}

const packageIndexMagic = 43

func (packageIndexExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	if len(rec.Variants()) != 1 {
		return 0, fmt.Errorf("extractors: package record %016x has %d variants, want 1", rec.Name(), len(rec.Variants()))
	}

	var head [8]byte
	if _, err := io.ReadFull(rec, head[:]); err != nil {
		return 0, fmt.Errorf("extractors: package: read header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(head[0:4]); magic != packageIndexMagic {
		return 0, fmt.Errorf("extractors: package %016x has unexpected magic %d", rec.Name(), magic)
	}
	numFiles := binary.LittleEndian.Uint32(head[4:8])

	pool.GrowFlex(0)
	buf := pool.Flex[:0]
	buf = append(buf, '[')

	for i := uint32(0); i < numFiles; i++ {
		var entry [16]byte
		if _, err := io.ReadFull(rec, entry[:]); err != nil {
			return 0, fmt.Errorf("extractors: package: read entry %d: %w", i, err)
		}
		extHash := binary.LittleEndian.Uint64(entry[0:8])
		nameHash := binary.LittleEndian.Uint64(entry[8:16])

		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, fmt.Sprintf(`{"name_hash":"%016x"`, nameHash)...)
		if name, ok := opts.Dictionary.Lookup(nameHash); ok {
			buf = append(buf, `,"name":"`...)
			buf = append(buf, jsonEscape(name)...)
			buf = append(buf, '"')
		}
		if ext, ok := hashutil.ExtensionForHash(extHash); ok {
			buf = append(buf, `,"ext":"`...)
			buf = append(buf, ext...)
			buf = append(buf, '"')
		} else {
			buf = append(buf, fmt.Sprintf(`,"ext_hash":"%016x"`, extHash)...)
		}
		buf = append(buf, '}')
	}
	buf = append(buf, ']')
	pool.Flex = buf

	jsonPath := outPath + ".json"
	wc, err := opts.Writer.Create(jsonPath)
	if err != nil {
		return 0, err
	}
	defer wc.Close()
	if _, err := wc.Write(pool.Flex); err != nil {
		return 0, fmt.Errorf("extractors: package: write %s: %w", jsonPath, err)
	}
	return uint64(len(pool.Flex)), nil
}
