package chunkreader

import (
	"bytes"
	"io"
	"testing"
)

func TestReadAcrossChunks(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 10)
	for i := range data {
		data[i] = byte(i)
	}
	src := bytes.NewReader(data)
	buf := make([]byte, 3)
	r := New(buf, src)

	got := make([]byte, len(data))
	n, err := io.ReadFull(r, got)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if n != len(data) {
		t.Fatalf("n = %d, want %d", n, len(data))
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %v, want %v", got, data)
	}
}

func TestSeekStart(t *testing.T) {
	data := []byte("0123456789")
	src := bytes.NewReader(data)
	buf := make([]byte, 4)
	r := New(buf, src)

	var b [1]byte
	if _, err := r.Read(b[:]); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "56789" {
		t.Fatalf("got %q, want %q", got, "56789")
	}
}

func TestReset(t *testing.T) {
	buf := make([]byte, 4)
	r := New(buf, bytes.NewReader([]byte("abcd")))
	var out [2]byte
	if _, err := r.Read(out[:]); err != nil {
		t.Fatal(err)
	}
	r.Reset(bytes.NewReader([]byte("wxyz")))
	got := make([]byte, 4)
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "wxyz" {
		t.Fatalf("got %q after reset, want %q", got, "wxyz")
	}
}
