package extractors

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/dispatch"
	"github.com/distribution/bundle-extract/hashutil"
)

func init() {
	dispatch.Register(hashutil.Hash64A([]byte("material")), dataPathExtractor{})
}

const dataPathBodySize = 30

// dataPathExtractor treats the record body as a NUL-terminated relative path
// to an auxiliary file stored alongside the bundle, and streams that file's
// bytes through unchanged. Used by material records; texture's high-
// resolution side-stream resolves the same kind of path.
type dataPathExtractor struct{}

func (dataPathExtractor) Extract(rec *bundlefmt.Record, outPath string, pool *dispatch.Pool, opts *dispatch.Options) (uint64, error) {
	if len(rec.Variants()) != 1 {
		return 0, fmt.Errorf("extractors: material record %016x has %d variants, want 1", rec.Name(), len(rec.Variants()))
	}
	v := rec.Variants()[0]
	if v.BodySize != dataPathBodySize || v.TailSize != 0 {
		return 0, fmt.Errorf("extractors: material %016x: body_size=%d tail_size=%d, want %d/0", rec.Name(), v.BodySize, v.TailSize, dataPathBodySize)
	}

	dataPath, err := readDataPath(rec, dataPathBodySize)
	if err != nil {
		return 0, fmt.Errorf("extractors: material: %w", err)
	}

	src, err := openDataPathFile(opts, dataPath)
	if err != nil {
		return 0, fmt.Errorf("extractors: material %016x references %q: %w", rec.Name(), dataPath, err)
	}
	defer src.Close()

	wc, err := opts.Writer.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer wc.Close()

	n, err := io.Copy(wc, src)
	if err != nil {
		return 0, fmt.Errorf("extractors: material: copy %s: %w", dataPath, err)
	}
	return uint64(n), nil
}

// readDataPath reads a fixed-size field containing a NUL-terminated path and
// returns the string up to (not including) the first NUL.
func readDataPath(r io.Reader, size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read data path field: %w", err)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

// openDataPathFile resolves a bundle-relative data path against opts.BundleDir
// and opens it for reading. A missing auxiliary file is reported as a plain
// error; callers treat it as the non-fatal "skip this record" case.
func openDataPathFile(opts *dispatch.Options, dataPath string) (*os.File, error) {
	full := filepath.Join(opts.BundleDir, filepath.FromSlash(dataPath))
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	return f, nil
}
