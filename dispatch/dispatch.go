// Package dispatch routes a decoded bundle record to its registered
// extractor, or to a raw blob passthrough when no extractor claims the
// record's type tag.
package dispatch

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/codec"
	"github.com/distribution/bundle-extract/hashutil"
	"github.com/distribution/bundle-extract/sandbox"
)

// Extractor transforms one record's body into its final on-disk form(s).
// Implementations read from rec (any bytes left unread are discarded by the
// caller), and write through opts.Writer.
type Extractor interface {
	Extract(rec *bundlefmt.Record, outPath string, pool *Pool, opts *Options) (uint64, error)
}

// Options carries the configuration shared by every record dispatched in a
// single run; it is immutable once constructed and safe to share across
// worker goroutines.
type Options struct {
	Writer     *sandbox.Writer
	Codec      codec.Codec
	Dictionary *hashutil.Dictionary
	AsBlob     bool

	// BundleDir is the directory containing the bundle currently being
	// read. Data-path records name auxiliary files relative to it.
	BundleDir string
}

// Pool holds one worker's reusable scratch buffers: Flat for path and
// header formatting, Flex for extractor staging. Both only ever grow; they
// are never freed between records.
type Pool struct {
	Flat []byte
	Flex []byte
}

// Grow ensures p.Flat is at least n bytes, reallocating only when needed.
func (p *Pool) Grow(n int) {
	if len(p.Flat) < n {
		p.Flat = make([]byte, n)
	}
}

// GrowFlex ensures p.Flex is at least n bytes.
func (p *Pool) GrowFlex(n int) {
	if cap(p.Flex) < n {
		grown := make([]byte, n)
		copy(grown, p.Flex)
		p.Flex = grown
	} else if len(p.Flex) < n {
		p.Flex = p.Flex[:n]
	}
}

const minFlatSize = 0x100000

// Dispatch resolves rec's printable name/extension, then either hands it to
// a registered Extractor or writes a raw blob envelope when none is
// registered for rec.Ext() (or AsBlob forces the fallback). It returns the
// number of bytes written.
func Dispatch(rec *bundlefmt.Record, pool *Pool, opts *Options) (uint64, error) {
	pool.Grow(minFlatSize)

	fileName, ok := opts.Dictionary.Lookup(rec.Name())
	if !ok {
		fileName = fmt.Sprintf("%016x", rec.Name())
	}
	extName, ok := hashutil.ExtensionForHash(rec.Ext())
	if !ok {
		extName = fmt.Sprintf("%016x", rec.Ext())
	}

	extractor, registered := lookup(rec.Ext())

	outPath := fileName + "." + extName
	if err := checkPath(outPath); err != nil {
		return 0, err
	}

	if opts.AsBlob || !registered {
		return writeBlob(rec, outPath, opts)
	}
	return extractor.Extract(rec, outPath, pool, opts)
}

func checkPath(p string) error {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return fmt.Errorf("dispatch: refusing unsafe path %q", p)
		}
	}
	return nil
}

// writeBlob serializes the record's (ext, name, variants) header followed
// by its raw body bytes, preserving enough information to reconstruct the
// original record from the output alone.
func writeBlob(rec *bundlefmt.Record, outPath string, opts *Options) (uint64, error) {
	wc, err := opts.Writer.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer wc.Close()

	variants := rec.Variants()
	header := make([]byte, 8+8+4+4+len(variants)*14)
	binary.LittleEndian.PutUint64(header[0:8], rec.Ext())
	binary.LittleEndian.PutUint64(header[8:16], rec.Name())
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(variants)))
	// header[20:24] reserved, left zero

	off := 24
	for _, v := range variants {
		binary.LittleEndian.PutUint32(header[off:off+4], v.Kind)
		header[off+4] = v.Flag1
		binary.LittleEndian.PutUint32(header[off+5:off+9], v.BodySize)
		header[off+9] = v.Flag2
		binary.LittleEndian.PutUint32(header[off+10:off+14], v.TailSize)
		off += 14
	}

	if _, err := wc.Write(header); err != nil {
		return 0, fmt.Errorf("dispatch: write blob header: %w", err)
	}

	n, err := io.Copy(wc, rec)
	if err != nil {
		return 0, fmt.Errorf("dispatch: write blob body: %w", err)
	}
	return uint64(len(header)) + uint64(n), nil
}
