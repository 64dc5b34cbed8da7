package worker

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/distribution/bundle-extract/bundlefmt"
)

// HashPair is one (extension, name) type-tag pair observed in a bundle's
// index.
type HashPair struct {
	Ext  uint64
	Name uint64
}

// CollectHashes scans every bundle's index (never its record stream) and
// returns the distinct (ext, name) pairs observed across all of them,
// sorted ascending by Ext then Name. A pair appearing in more than one
// bundle - common, since the same asset is often repacked across several
// bundles - is reported once.
func CollectHashes(bundles []Bundle) ([]HashPair, error) {
	seen := make(map[HashPair]struct{})

	for _, b := range bundles {
		if err := collectBundleHashes(b, seen); err != nil {
			return nil, fmt.Errorf("worker: collect hashes from %s: %w", b.Path, err)
		}
	}

	pairs := make([]HashPair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Ext != pairs[j].Ext {
			return pairs[i].Ext < pairs[j].Ext
		}
		return pairs[i].Name < pairs[j].Name
	})
	return pairs, nil
}

func collectBundleHashes(b Bundle, seen map[HashPair]struct{}) error {
	f, err := os.Open(b.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	hash := b.Hash
	bundle, err := bundlefmt.Open(f, &hash)
	if err != nil {
		return err
	}

	idx := bundle.Index()
	for {
		entry, ok, err := idx.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		seen[HashPair{Ext: entry.Ext, Name: entry.Name}] = struct{}{}
	}
}

// WriteHashFile writes pairs as 16-byte little-endian records (ext then
// name) to w. Callers must pass pairs already sorted, as CollectHashes
// returns them.
func WriteHashFile(w io.Writer, pairs []HashPair) error {
	buf := make([]byte, 16)
	for _, p := range pairs {
		binary.LittleEndian.PutUint64(buf[0:8], p.Ext)
		binary.LittleEndian.PutUint64(buf[8:16], p.Name)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
