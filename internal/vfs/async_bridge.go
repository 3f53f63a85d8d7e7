package vfs

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// ExternalResolver is implemented by the host transport. It round-trips a
// file request to the host frame (an fs-request/fs-response pair over the
// websocket connection, spec.md §6) and returns the content, a presence
// flag, and any transport-level error.
type ExternalResolver interface {
	RequestFile(path string) (content []byte, found bool, err error)
}

// AsyncBridgeLayer delegates misses from upstream layers to an external
// file resolver. It supports only the asynchronous read path; synchronous
// reads always report a miss, per spec.md §4.A.
//
// In-flight requests for the same path are coalesced with singleflight so
// that two modules importing the same externally-resolved file in the
// same tick only trigger one host round-trip.
type AsyncBridgeLayer struct {
	resolver ExternalResolver

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedResult
}

type cachedResult struct {
	content []byte
	found   bool
}

// NewAsyncBridgeLayer wraps resolver as a VFS layer.
func NewAsyncBridgeLayer(resolver ExternalResolver) *AsyncBridgeLayer {
	return &AsyncBridgeLayer{
		resolver: resolver,
		cache:    make(map[string]cachedResult),
	}
}

func (a *AsyncBridgeLayer) Name() string { return "async-bridge" }

// ExistsAsync reports whether the host frame has the file, suspending on
// the round-trip (or returning a memoized result).
func (a *AsyncBridgeLayer) ExistsAsync(path string) (bool, error) {
	_, found, err := a.ReadAsync(path)
	return found, err
}

// ReadAsync fetches path from the host, memoizing both hits and misses for
// the lifetime of this layer (cleared by Invalidate).
func (a *AsyncBridgeLayer) ReadAsync(path string) ([]byte, bool, error) {
	a.mu.RLock()
	if cached, ok := a.cache[path]; ok {
		a.mu.RUnlock()
		return cached.content, cached.found, nil
	}
	a.mu.RUnlock()

	v, err, _ := a.group.Do(path, func() (any, error) {
		content, found, err := a.resolver.RequestFile(path)
		if err != nil {
			// Failures surface as not-found, per spec.md §4.A; they are
			// not memoized so a transient host error can be retried.
			return cachedResult{found: false}, nil
		}
		result := cachedResult{content: content, found: found}
		a.mu.Lock()
		a.cache[path] = result
		a.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	result := v.(cachedResult)
	return result.content, result.found, nil
}

// Invalidate drops every memoized result, implementing vfs.Invalidator.
func (a *AsyncBridgeLayer) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]cachedResult)
}
