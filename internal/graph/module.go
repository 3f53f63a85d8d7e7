// Package graph holds the Module type and the module graph described in
// spec.md §3 and §4.D: a path-keyed DAG (cycles tolerated, per spec — the
// linker, not the graph, is responsible for handling them) with reverse
// edges (initiators) maintained incrementally.
package graph

import "sync"

// HMRState is the per-module hot-module-replacement bookkeeping described
// in spec.md §3 "HMR state per module" and implemented in internal/hmr.
// It lives on Module because every module has exactly one, but its
// behavior is owned by the hmr package.
type HMRState struct {
	mu          sync.Mutex
	IsHot       bool
	IsDirty     bool
	Invalidated bool
	Data        any

	disposeHandlers []func(data any)
	acceptHandlers  []func()
}

// Module is a single node in the graph, identified by its absolute path.
// See spec.md §3 for the field invariants.
type Module struct {
	mu sync.RWMutex

	Path    string
	IsEntry bool

	source   []byte
	compiled []byte
	compErr  error

	// dependencyMap maps the original import specifier to the resolved
	// absolute path, as written by addDependency.
	dependencyMap map[string]string

	Hot *HMRState
}

// Accept registers handler to run after this module is re-evaluated
// following a hot update, and marks the module hot. A nil handler means
// "accept with no explicit callback" (the module still opts in to HMR,
// it just has nothing extra to run).
func (h *HMRState) Accept(handler func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.IsHot = true
	if handler != nil {
		h.acceptHandlers = append(h.acceptHandlers, handler)
	}
}

// Dispose registers handler to run with the module's last Data just
// before it is torn down for re-evaluation.
func (h *HMRState) Dispose(handler func(data any)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposeHandlers = append(h.disposeHandlers, handler)
}

// Invalidate marks the module as requiring a full recompile rather than
// an in-place hot update (spec.md §4.H).
func (h *HMRState) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Invalidated = true
}

// IsHotAccepted reports whether this module has ever called accept(),
// opting in to in-place hot updates.
func (h *HMRState) IsHotAccepted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.IsHot
}

// IsInvalidated reports whether Invalidate was called since the last
// Reset.
func (h *HMRState) IsInvalidated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Invalidated
}

// MarkDirty flags the module for re-evaluation on the next HMR pass.
func (h *HMRState) MarkDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.IsDirty = true
}

// ClearDirty is called once the linker has re-evaluated the module.
func (h *HMRState) ClearDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.IsDirty = false
}

// Dirty reports whether the module is pending re-evaluation.
func (h *HMRState) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.IsDirty
}

// RunDispose runs every registered dispose handler with the module's
// current Data, in registration order, then clears them — dispose
// handlers fire once per teardown, matching the reference host's
// disposable-callback contract.
func (h *HMRState) RunDispose() {
	h.mu.Lock()
	handlers := h.disposeHandlers
	data := h.Data
	h.disposeHandlers = nil
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(data)
	}
}

// RunAccept runs every registered accept handler, in registration order.
// Unlike dispose handlers, accept handlers persist across multiple hot
// updates.
func (h *HMRState) RunAccept() {
	h.mu.Lock()
	handlers := append([]func(){}, h.acceptHandlers...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Reset clears Invalidated and Data. The orchestrator calls it when it
// observes the invalidation, before the compile is restarted.
func (h *HMRState) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Invalidated = false
	h.Data = nil
}

// New creates a module for path. It is not yet compiled.
func New(path string) *Module {
	return &Module{
		Path:          path,
		dependencyMap: make(map[string]string),
		Hot:           &HMRState{},
	}
}

// SetSource refreshes the module's original source text, as done by the
// scheduler before every compile attempt (spec.md §4.E step 2: "reads the
// latest source from FS to catch edits").
func (m *Module) SetSource(src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
}

// Source returns the module's current source text.
func (m *Module) Source() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// Compiled returns the compiled text, or nil if compilation has not
// succeeded yet.
func (m *Module) Compiled() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compiled
}

// CompilationError returns the last compilation error, if any.
func (m *Module) CompilationError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compErr
}

// IsCompiled reports whether compiled != nil, the condition the scheduler
// uses to short-circuit transformModule (spec.md §4.E step 1).
func (m *Module) IsCompiled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compiled != nil && m.compErr == nil
}

// SetCompiled records a successful compilation, replacing any dependency
// map from a previous attempt.
func (m *Module) SetCompiled(code []byte, depSpecifiers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = code
	m.compErr = nil
	// Dependency resolution happens separately via AddDependency; clear
	// the map here only if the new compile discovered a different set of
	// specifiers (a specifier that's gone is dropped, a new one is added
	// with no resolution yet).
	fresh := make(map[string]string, len(depSpecifiers))
	for _, spec := range depSpecifiers {
		if resolved, ok := m.dependencyMap[spec]; ok {
			fresh[spec] = resolved
		} else {
			fresh[spec] = ""
		}
	}
	m.dependencyMap = fresh
}

// SetCompilationError records a failed compilation attempt. A module in
// this state is not IsCompiled, so the next TransformModule for it
// compiles it again.
func (m *Module) SetCompilationError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = nil
	m.compErr = err
}

// ResolveDependency records the resolved absolute path for specifier,
// called by the scheduler once the resolver has produced an answer.
func (m *Module) ResolveDependency(specifier, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dependencyMap == nil {
		m.dependencyMap = make(map[string]string)
	}
	m.dependencyMap[specifier] = resolved
}

// UnresolvedSpecifiers returns every specifier discovered by the last
// compile whose resolved path is not yet known.
func (m *Module) UnresolvedSpecifiers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for spec, resolved := range m.dependencyMap {
		if resolved == "" {
			out = append(out, spec)
		}
	}
	return out
}

// Dependencies returns the deduplicated set of resolved dependency paths,
// the range of dependencyMap per spec.md §3.
func (m *Module) Dependencies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.dependencyMap))
	out := make([]string, 0, len(m.dependencyMap))
	for _, resolved := range m.dependencyMap {
		if resolved == "" {
			continue
		}
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	return out
}

// ResolvedPathFor returns the resolved path for an original import
// specifier, as recorded in dependencyMap, used by the linker's
// require(spec) lookup (spec.md §4.G).
func (m *Module) ResolvedPathFor(specifier string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.dependencyMap[specifier]
	return p, ok && p != ""
}

// ResetCompilation clears compiled and compErr, matching spec.md §4.D.
// It does not touch the linker's cached exports; EvaluateDirty drops
// those for dirty modules. HMR escalation (mark dirty vs. full reload) is
// decided by the hmr package through the HMRState methods above.
func (m *Module) ResetCompilation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = nil
	m.compErr = nil
}
