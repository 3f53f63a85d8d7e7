// Package vfs implements the layered virtual file system described in
// spec.md §4.A: an ordered stack of layers queried in order for reads,
// with writes always landing on the single mutable memory layer.
//
// Paths are always absolute and always use "/" regardless of host OS,
// since the files a bundle compiles are browser paths, not filesystem
// paths. Normalization collapses "." and ".." segments before any layer
// is consulted.
package vfs

import (
	gopath "path"
	"strings"
	"sync"

	"github.com/vk/webbundler/internal/bundlerr"
)

// SyncLayer answers synchronous existence/read queries. The memory layer
// and the package layer implement this; the async bridge layer does not.
type SyncLayer interface {
	ExistsSync(path string) bool
	ReadSync(path string) ([]byte, bool)
}

// AsyncLayer answers existence/read queries that may need to suspend on
// external I/O (a host round-trip, a registry fetch). Every layer in this
// package implements AsyncLayer; layers that are purely synchronous just
// wrap their sync path.
type AsyncLayer interface {
	ExistsAsync(path string) (bool, error)
	ReadAsync(path string) ([]byte, bool, error)
}

// Layer is the minimal contract every layer must satisfy. Layers should
// additionally implement SyncLayer when they can answer without I/O.
type Layer interface {
	AsyncLayer
	// Name identifies the layer for diagnostics.
	Name() string
}

// Invalidator is implemented by layers that hold caches needing to be
// dropped on FS.ResetCache (e.g. the async bridge's pending-request
// memoization).
type Invalidator interface {
	Invalidate()
}

// FS is an ordered stack of layers plus the one mutable memory layer that
// absorbs writes. Layers are consulted top-to-bottom in the order passed
// to New; the memory layer is always layer zero.
type FS struct {
	mu     sync.RWMutex
	memory *MemoryLayer
	layers []Layer
}

// New constructs an FS whose first layer is an empty, writable memory
// layer, followed by the given read-only layers in order.
func New(extra ...Layer) *FS {
	mem := NewMemoryLayer()
	return &FS{
		memory: mem,
		layers: append([]Layer{mem}, extra...),
	}
}

// Normalize collapses "." and ".." segments and ensures a leading "/".
func Normalize(path string) string {
	if path == "" {
		return "/"
	}
	p := strings.ReplaceAll(path, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := gopath.Clean(p)
	return cleaned
}

// WriteSync writes bytes to the in-memory layer, the only mutable layer.
func (fs *FS) WriteSync(path string, content []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.memory.write(Normalize(path), content)
}

// ExistsSync reports whether path is satisfied by any layer that can
// answer synchronously. Layers that are async-only are skipped, matching
// spec.md's "synchronous reads are unsupported on this layer".
func (fs *FS) ExistsSync(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	p := Normalize(path)
	for _, l := range fs.layers {
		if sl, ok := l.(SyncLayer); ok && sl.ExistsSync(p) {
			return true
		}
	}
	return false
}

// ReadSync returns the first synchronous hit across the layer stack.
func (fs *FS) ReadSync(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	p := Normalize(path)
	for _, l := range fs.layers {
		sl, ok := l.(SyncLayer)
		if !ok {
			continue
		}
		if content, ok := sl.ReadSync(p); ok {
			return content, nil
		}
	}
	return nil, &bundlerr.ModuleNotFound{Path: p}
}

// ExistsAsync reports whether path is satisfied by any layer, suspending
// on I/O as needed (e.g. the async bridge layer's host round-trip).
func (fs *FS) ExistsAsync(path string) (bool, error) {
	p := Normalize(path)
	fs.mu.RLock()
	layers := append([]Layer(nil), fs.layers...)
	fs.mu.RUnlock()
	for _, l := range layers {
		ok, err := l.ExistsAsync(p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ReadAsync returns the first hit across the layer stack, suspending on
// I/O as needed.
func (fs *FS) ReadAsync(path string) ([]byte, error) {
	p := Normalize(path)
	fs.mu.RLock()
	layers := append([]Layer(nil), fs.layers...)
	fs.mu.RUnlock()
	for _, l := range layers {
		content, ok, err := l.ReadAsync(p)
		if err != nil {
			return nil, err
		}
		if ok {
			return content, nil
		}
	}
	return nil, &bundlerr.ModuleNotFound{Path: p}
}

// ResetCache clears any memoized state held by layers that opt in via
// Invalidator. The memory layer's contents are never cleared by this
// call — only derived/cached state is.
func (fs *FS) ResetCache() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, l := range fs.layers {
		if inv, ok := l.(Invalidator); ok {
			inv.Invalidate()
		}
	}
}

// AddLayer appends a read-only layer to the bottom of the stack. Used to
// wire the package layer in after the registry has been constructed.
func (fs *FS) AddLayer(l Layer) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.layers = append(fs.layers, l)
}
