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
	dispatch.Register(hashutil.Hash64A([]byte("strings")), localizedStringsExtractor{})
}

var languageNames = map[uint32]string{
	0:    "english",
	1:    "spanish",
	2:    "french",
	4:    "polish",
	8:    "german",
	16:   "japanese",
	32:   "english2",
	64:   "italian",
	128:  "korean",
	256:  "chinese_traditional",
	512:  "russian",
	1024: "portuguese",
	2048: "chinese_simplified",
}

// localizedStringsExtractor writes one "<stem>.<language>.json" sibling per
// variant, each a flat object mapping a dictionary-resolved key (or the raw
// short hash, hex-encoded, when unknown) to that language's string. When a
// loaded dictionary has SkipUnknown set, keys it does not know are omitted.
type localizedStringsExtractor struct{}

func (localizedStringsExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	stem := strings.TrimSuffix(path.Base(outPath), path.Ext(outPath))
	dir := path.Dir(outPath)

	var wrote uint64
	for _, variant := range rec.Variants() {
		n, err := extractLanguageVariant(rec, variant, dir, stem, pool, opts)
		if err != nil {
			return wrote, err
		}
		wrote += n
	}
	return wrote, nil
}

func extractLanguageVariant(rec *bundlefmt.Record, variant bundlefmt.Variant, dir, stem string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	var head [8]byte
	if _, err := io.ReadFull(rec, head[:]); err != nil {
		return 0, fmt.Errorf("extractors: strings: read variant header: %w", err)
	}
	numItems := binary.LittleEndian.Uint32(head[4:8])

	type item struct {
		shortHash uint32
		offset    uint32
	}
	items := make([]item, numItems)
	for i := range items {
		var rec8 [8]byte
		if _, err := io.ReadFull(rec, rec8[:]); err != nil {
			return 0, fmt.Errorf("extractors: strings: read item %d: %w", i, err)
		}
		items[i] = item{
			shortHash: binary.LittleEndian.Uint32(rec8[0:4]),
			offset:    binary.LittleEndian.Uint32(rec8[4:8]),
		}
	}

	pool.GrowFlex(0)
	buf := pool.Flex[:0]
	buf = append(buf, '{')
	trailing := false

	offset := uint32(8)
	for i, it := range items {
		var strLen uint32
		if i+1 < len(items) {
			strLen = items[i+1].offset - it.offset
		} else {
			strLen = variant.BodySize - it.offset
		}

		raw := make([]byte, strLen)
		if _, err := io.ReadFull(rec, raw); err != nil {
			return 0, fmt.Errorf("extractors: strings: read string %d: %w", i, err)
		}
		if strLen == 0 || raw[strLen-1] != 0 {
			return 0, fmt.Errorf("extractors: strings: string %d not NUL-terminated", i)
		}

		key, known := opts.Dictionary.LookupShort(it.shortHash)
		emit := known
		if !known && (opts.Dictionary == nil || !opts.Dictionary.SkipUnknown) {
			emit = true
		}

		if emit {
			if trailing {
				buf = append(buf, ',')
			}
			trailing = true
			if known {
				buf = append(buf, '"')
				buf = append(buf, jsonEscape(key)...)
				buf = append(buf, '"', ':', '"')
			} else {
				buf = append(buf, '"')
				buf = append(buf, fmt.Sprintf("%08x", it.shortHash)...)
				buf = append(buf, '"', ':', '"')
			}

			content := raw
			if int(strLen) >= 2 {
				content = raw[:strLen-2]
			}
			for _, c := range string(content) {
				if c == 0 {
					break
				}
				switch c {
				case '\t':
					buf = append(buf, '\\', 't')
				case '\n':
					buf = append(buf, '\\', 'n')
				case '\r':
					buf = append(buf, '\\', 'r')
				case '"':
					buf = append(buf, '\\', '"')
				default:
					buf = append(buf, string(c)...)
				}
			}
			buf = append(buf, '"')
		}
		offset += strLen
	}
	buf = append(buf, '}')
	pool.Flex = buf

	if offset != variant.BodySize {
		return 0, fmt.Errorf("extractors: strings: consumed %d bytes, variant declared %d", offset, variant.BodySize)
	}

	lang, ok := languageNames[variant.Kind]
	if !ok {
		lang = fmt.Sprintf("%016x", variant.Kind)
	}
	outPath := path.Join(dir, fmt.Sprintf("%s.%s.json", stem, lang))

	if err := opts.Writer.PutContent(outPath, pool.Flex); err != nil {
		return 0, fmt.Errorf("extractors: strings: write %s: %w", outPath, err)
	}
	return uint64(len(pool.Flex)), nil
}

func jsonEscape(s string) string {
	if !strings.ContainsAny(s, "\"\\") {
		return s
	}
	var b strings.Builder
	for _, c := range s {
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
