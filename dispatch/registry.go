package dispatch

import "sync"

var (
	registryMu sync.RWMutex
	registry   = make(map[uint64]Extractor)
)

// Register associates an Extractor with a type-tag hash. Extractor packages
// call this from their own init(), mirroring how manifest schema packages
// register themselves with the manifest package by media type.
func Register(ext uint64, e Extractor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[ext] = e
}

func lookup(ext uint64) (Extractor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[ext]
	return e, ok
}
