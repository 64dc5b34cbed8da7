// Package chunkreader provides a buffered reader over an io.ReadSeeker that
// never allocates its own buffer, so a single buffer can be reused across
// many bundle files by one worker.
package chunkreader

import (
	"errors"
	"io"
)

// Reader buffers reads from an underlying io.ReadSeeker using a caller-owned
// buffer. Unlike bufio.Reader, the buffer is supplied by the caller and can
// be reset onto a new underlying source with Reset, avoiding a fresh
// allocation per bundle.
type Reader struct {
	inner  io.ReadSeeker
	buf    []byte
	offset int
	filled int
	primed bool
}

// New wraps inner, using buf as scratch space. buf is not copied; its
// contents are overwritten as data is read.
func New(buf []byte, inner io.ReadSeeker) *Reader {
	return &Reader{inner: inner, buf: buf}
}

// Reset rebinds the reader onto a new underlying source, reusing the same
// buffer and clearing any buffered state.
func (r *Reader) Reset(inner io.ReadSeeker) {
	r.inner = inner
	r.offset = 0
	r.filled = 0
	r.primed = false
}

func (r *Reader) nextChunk() error {
	r.offset = 0
	n, err := r.inner.Read(r.buf)
	r.filled = n
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Read implements io.Reader, refilling the internal buffer from the
// underlying source as needed.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.primed {
		r.primed = true
		if err := r.nextChunk(); err != nil {
			return 0, err
		}
	}

	read := 0
	for len(p) > 0 {
		avail := r.filled - r.offset
		if avail <= 0 {
			if r.offset == r.filled {
				if err := r.nextChunk(); err != nil {
					return read, err
				}
				if r.filled != 0 {
					continue
				}
			}
			break
		}
		n := avail
		if n > len(p) {
			n = len(p)
		}
		copy(p[:n], r.buf[r.offset:r.offset+n])
		r.offset += n
		read += n
		p = p[n:]
	}

	if read == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return read, nil
}

// Seek implements io.Seeker. Only io.SeekStart and io.SeekCurrent are
// supported; io.SeekEnd is rejected since the reference format never needs
// end-relative positioning.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var seekTo int64
	switch whence {
	case io.SeekCurrent:
		seekTo = int64(r.offset) + offset
	case io.SeekStart:
		cur, err := r.inner.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		start := cur - int64(r.filled)
		seekTo = offset - start
	default:
		return 0, errors.New("chunkreader: SeekEnd not supported")
	}

	if seekTo < 0 || seekTo > int64(r.filled) {
		delta := seekTo - int64(r.filled)
		r.offset = 0
		r.filled = 0
		r.primed = true
		return r.inner.Seek(delta, io.SeekCurrent)
	}

	r.offset = int(seekTo)
	cur, err := r.inner.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	next, err := r.inner.Seek(int64(r.offset)-int64(r.filled), io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := r.inner.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return next, nil
}
