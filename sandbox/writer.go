// Package sandbox provides a write-only filesystem surface rooted at a
// canonicalized directory: every write path is resolved and verified to
// stay under that root before anything touches disk.
package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/distribution/bundle-extract/internal/uuid"
)

// ErrPathEscape is returned when a requested path would resolve outside the
// writer's root.
var ErrPathEscape = errors.New("sandbox: path escapes root")

// Writer creates files under a canonicalized root directory. A Writer
// constructed via NewNull discards everything written through it, for
// dry-run and hash-enumeration modes that must still exercise the same
// dispatch code path.
type Writer struct {
	root string
	null bool
}

// New canonicalizes root (creating it if necessary) and returns a Writer
// scoped to it.
func New(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, fmt.Errorf("sandbox: create root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: canonicalize root: %w", err)
	}
	return &Writer{root: resolved}, nil
}

// NewNull returns a Writer that discards every write, used for dry-run and
// hash-dump modes.
func NewNull() *Writer {
	return &Writer{null: true}
}

// resolve validates subPath against path traversal and returns the absolute
// on-disk path it refers to.
func (w *Writer) resolve(subPath string) (string, error) {
	clean := filepath.Clean(subPath)
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathEscape, subPath)
		}
	}

	full := filepath.Join(w.root, clean)
	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, subPath)
	}
	return full, nil
}

// Create opens subPath for writing, truncating any existing content and
// creating parent directories as needed. Callers are responsible for
// closing the returned WriteCloser.
func (w *Writer) Create(subPath string) (io.WriteCloser, error) {
	if w.null {
		return nullWriteCloser{}, nil
	}

	full, err := w.resolve(subPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o777); err != nil {
		return nil, fmt.Errorf("sandbox: create parent dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create %s: %w", subPath, err)
	}
	return f, nil
}

// PutContent atomically replaces subPath's contents via a temp-file-then-
// rename sequence, so a reader never observes a partially-written file.
func (w *Writer) PutContent(subPath string, contents []byte) error {
	if w.null {
		return nil
	}

	tempPath := subPath + "." + uuid.NewString() + ".tmp"
	wc, err := w.Create(tempPath)
	if err != nil {
		return err
	}
	if _, err := wc.Write(contents); err != nil {
		wc.Close()
		w.remove(tempPath)
		return fmt.Errorf("sandbox: write %s: %w", subPath, err)
	}
	if err := wc.Close(); err != nil {
		w.remove(tempPath)
		return fmt.Errorf("sandbox: close %s: %w", subPath, err)
	}

	fullTemp, err := w.resolve(tempPath)
	if err != nil {
		return err
	}
	fullTarget, err := w.resolve(subPath)
	if err != nil {
		w.remove(tempPath)
		return err
	}
	if err := os.Rename(fullTemp, fullTarget); err != nil {
		w.remove(tempPath)
		return fmt.Errorf("sandbox: rename into place %s: %w", subPath, err)
	}
	return nil
}

func (w *Writer) remove(subPath string) {
	if full, err := w.resolve(subPath); err == nil {
		os.Remove(full)
	}
}

type nullWriteCloser struct{}

func (nullWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nullWriteCloser) Close() error                { return nil }
