package hashutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Dictionary maps name hashes to their printable source path, loaded once
// from a newline-delimited text file. A zero-value Dictionary resolves
// nothing; SkipUnknown is false in that case, matching the reference tool's
// "no dictionary means extract everything" behavior.
type Dictionary struct {
	byHash  map[uint64]string
	byShort map[uint32]string

	// SkipUnknown is true when a dictionary was loaded; records whose name
	// hash has no dictionary entry are skipped during extraction.
	SkipUnknown bool
}

// LoadDictionary reads a dictionary file, one path per line, blank lines
// ignored. A missing file is not an error: it returns an empty Dictionary
// with SkipUnknown=false.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Dictionary{}, nil
		}
		return nil, fmt.Errorf("hashutil: open dictionary: %w", err)
	}
	defer f.Close()

	d := &Dictionary{
		byHash:      make(map[uint64]string, 0x1000),
		byShort:     make(map[uint32]string, 0x1000),
		SkipUnknown: true,
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h := Hash64A([]byte(line))
		d.byHash[h] = line
		d.byShort[ShortHash(h)] = line
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("hashutil: read dictionary: %w", err)
	}
	return d, nil
}

// Lookup resolves a full 64-bit name hash to its printable form.
func (d *Dictionary) Lookup(h uint64) (string, bool) {
	if d == nil || d.byHash == nil {
		return "", false
	}
	name, ok := d.byHash[h]
	return name, ok
}

// LookupShort resolves a 32-bit short hash, used for localized-string keys.
func (d *Dictionary) LookupShort(h uint32) (string, bool) {
	if d == nil || d.byShort == nil {
		return "", false
	}
	name, ok := d.byShort[h]
	return name, ok
}
