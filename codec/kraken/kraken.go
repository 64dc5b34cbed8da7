// Package kraken loads the Oodle/Kraken block decompressor from its native
// shared library at runtime and adapts it to the codec.Codec interface.
//
// The reference tool links this library with the platform's dynamic loader
// (libloading on the Rust side); Go has no stdlib equivalent that can open
// an arbitrary C ABI shared library (the stdlib "plugin" package only loads
// Go-compiled plugins), so this package uses purego's dlopen/dlsym bindings
// instead.
package kraken

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/distribution/bundle-extract/codec"
)

// DefaultLibraryName is the filename of the native decompressor as shipped
// alongside the target game's binaries.
const DefaultLibraryName = "oo2core_8_win64.dll"

// Codec wraps a dynamically-loaded Oodle/Kraken shared library.
type Codec struct {
	handle uintptr

	decompress       func(src uintptr, srcLen uint64, dst uintptr, dstLen uint64, fuzzSafe, checkCRC, verbosity int32, decBuf uintptr, decBufSize uint64, fpCallback, callbackCtx uintptr, scratch uintptr, scratchLen uint64, threadPhase int32) uint64
	memorySizeNeeded func(a, b int64) uint64
}

// Load locates DefaultLibraryName by probing, in order: the working
// directory, "<bundleDir>/../binaries/<name>", and bundleDir itself, mirroring
// the reference tool's DLL search order (next to the extractor binary, then
// the game's binaries folder relative to the bundle being read).
func Load(bundleDir string) (*Codec, error) {
	candidates := []string{
		DefaultLibraryName,
		filepath.Join(filepath.Dir(bundleDir), "binaries", DefaultLibraryName),
		filepath.Join(bundleDir, DefaultLibraryName),
	}

	var lastErr error
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			lastErr = err
			continue
		}
		c, err := LoadFrom(path)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("kraken: %s could not be loaded: %w", DefaultLibraryName, lastErr)
}

// LoadFrom loads the decompressor from an explicit path.
func LoadFrom(path string) (*Codec, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("kraken: dlopen %s: %w", path, err)
	}

	c := &Codec{handle: handle}
	purego.RegisterLibFunc(&c.decompress, handle, "OodleLZ_Decompress")
	purego.RegisterLibFunc(&c.memorySizeNeeded, handle, "OodleLZDecoder_MemorySizeNeeded")
	return c, nil
}

// ScratchSize implements codec.Codec.
func (c *Codec) ScratchSize() uint64 {
	return c.memorySizeNeeded(-1, -1)
}

// Decompress implements codec.Codec.
func (c *Codec) Decompress(in, out, scratch []byte) error {
	ret := c.decompress(
		ptrOf(in), uint64(len(in)),
		ptrOf(out), uint64(len(out)),
		1, 0, 3,
		0, 0, 0, 0,
		ptrOf(scratch), uint64(len(scratch)),
		3,
	)
	if ret != uint64(len(out)) {
		return fmt.Errorf("kraken: decompress returned %d, want %d: %w", ret, len(out), codec.ErrShortOutput)
	}
	return nil
}

// ptrOf returns a pointer to b's backing array, or 0 for an empty slice.
// The returned uintptr is only valid for the duration of the call that
// consumes it; it must not be retained, matching purego's FFI calling
// convention for raw pointer arguments.
func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Close implements codec.Codec. purego does not currently expose dlclose,
// so this is a no-op; the library remains mapped for the process lifetime,
// matching the reference tool which never unloads it either.
func (c *Codec) Close() error {
	return nil
}
