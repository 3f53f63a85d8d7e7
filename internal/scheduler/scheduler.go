// Package scheduler implements the transformation scheduler described in
// spec.md §4.E: a named promise queue that guarantees at most one
// in-flight compile per path, with dependency compiles kicked off
// eagerly (not awaited) and a separate transitive-closure wait exposed
// for callers that need everything reachable from an entry to finish.
//
// # Why a named queue
//
// Two modules discovering the same dependency in the same tick (a shared
// utility imported from both an entry and a lazy route, say) must not
// compile it twice — not for correctness (compile is meant to be
// idempotent) but for the concurrency guarantee spec.md §5 requires:
// "for any path, at most one transformation task is ever in flight."
// A map from path to a shared in-flight future, cleared on settlement, is
// the simplest structure that gives every caller the same result without
// a second compile running.
package scheduler

import (
	"sync"

	"github.com/vk/webbundler/internal/bundlerr"
	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/preset"
	"github.com/vk/webbundler/internal/resolver"
	"github.com/vk/webbundler/internal/vfs"
)

// Future is a settled-once result shared by every caller that asked for
// the same path while it was in flight.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the future settles and returns its error, if any.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Done reports whether the future has already settled, without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Scheduler is the named promise queue itself plus the module graph,
// resolver, preset registry and FS it needs to actually run a compile.
type Scheduler struct {
	fs          *vfs.FS
	graph       *graph.Graph
	resolver    *resolver.Resolver
	presets     *preset.Registry
	active      *preset.Preset
	resolveOpts resolver.Options

	specifierResolver SpecifierResolverFunc

	mu       sync.Mutex
	inFlight map[string]*Future
}

// New constructs a scheduler bound to one bundler's FS, graph, resolver
// and preset registry.
func New(fs *vfs.FS, g *graph.Graph, r *resolver.Resolver, presets *preset.Registry, active *preset.Preset, opts resolver.Options) *Scheduler {
	return &Scheduler{
		fs:          fs,
		graph:       g,
		resolver:    r,
		presets:     presets,
		active:      active,
		resolveOpts: opts,
		inFlight:    make(map[string]*Future),
	}
}

// GetInFlight exposes the in-flight future for path, if any, so fan-in
// callers (moduleFinished) can await it without starting a second compile.
func (s *Scheduler) GetInFlight(path string) (*Future, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.inFlight[path]
	return f, ok
}

// schedule returns the existing future for path if one is in flight;
// otherwise it starts work in a goroutine, records the future, and
// removes the entry from inFlight on settlement.
func (s *Scheduler) schedule(path string, work func() error) *Future {
	s.mu.Lock()
	if f, ok := s.inFlight[path]; ok {
		s.mu.Unlock()
		return f
	}
	f := &Future{done: make(chan struct{})}
	s.inFlight[path] = f
	s.mu.Unlock()

	go func() {
		f.err = work()
		close(f.done)
		s.mu.Lock()
		delete(s.inFlight, path)
		s.mu.Unlock()
	}()
	return f
}

// TransformModule implements spec.md §4.E's transformModule(path):
//
//  1. If the module exists and has compiled != nil, return immediately.
//  2. Otherwise enqueue a job that reads the latest source from FS,
//     creates/refreshes the Module, calls compile(), then for each
//     discovered dependency resolves it and recursively schedules its
//     transformation WITHOUT awaiting (deps are awaited separately via
//     ModuleFinished).
func (s *Scheduler) TransformModule(path string) *Future {
	if m, ok := s.graph.Get(path); ok && m.IsCompiled() {
		done := make(chan struct{})
		close(done)
		return &Future{done: done}
	}

	return s.schedule(path, func() error {
		return s.compileOne(path)
	})
}

func (s *Scheduler) compileOne(path string) error {
	if s.active == nil {
		return &bundlerr.PresetMissing{}
	}

	m := s.graph.GetOrCreate(path)

	src, err := s.fs.ReadAsync(path)
	if err != nil {
		m.SetCompilationError(err)
		return err
	}
	m.SetSource(src)

	result, err := s.presets.Run(s.active, preset.TransformInput{Path: path, Code: src})
	if err != nil {
		m.SetCompilationError(err)
		return err
	}

	previousDeps := m.Dependencies()
	m.SetCompiled(result.Code, result.Dependencies)
	s.graph.ClearInitiatorsFrom(path, previousDeps)

	for _, specifier := range result.Dependencies {
		resolved, err := s.resolveSpecifier(specifier, path)
		if err != nil {
			m.SetCompilationError(err)
			return err
		}
		m.ResolveDependency(specifier, resolved)
		s.graph.AddDependencyEdge(path, resolved)
		s.graph.GetOrCreate(resolved)
		// Fire-and-forget: dependencies compile concurrently. Callers
		// awaiting the closure do so via ModuleFinished, not here.
		s.TransformModule(resolved)
	}

	return nil
}

// resolveSpecifier resolves a raw specifier discovered by a transformer.
// The orchestrator overrides this via SetSpecifierResolver to route
// built-in names (spec.md §4.I) to their shim path before falling back
// to the real resolver.
func (s *Scheduler) resolveSpecifier(specifier, fromPath string) (string, error) {
	if s.specifierResolver != nil {
		return s.specifierResolver(specifier, fromPath)
	}
	return s.resolver.Resolve(specifier, fromPath, s.resolveOpts)
}

// SpecifierResolverFunc lets the orchestrator inject shim-aware resolution
// (spec.md §4.I: the resolver maps bare/"node:"-prefixed built-in names to
// their shim path) without the scheduler importing the shim package
// directly.
type SpecifierResolverFunc func(specifier, fromPath string) (string, error)

// SetSpecifierResolver installs a resolver override, typically one that
// checks shim.IsBuiltinSpecifier before falling back to the real resolver.
func (s *Scheduler) SetSpecifierResolver(fn SpecifierResolverFunc) {
	s.specifierResolver = fn
}

// ModuleFinished implements spec.md §4.E's moduleFinished(path): a wait for
// the entire transitive closure reachable from path to settle, surfacing
// the first compilation error encountered anywhere in the closure. Visited
// paths are tracked so cycles (tolerated by the graph, per spec.md §3) do
// not recurse forever.
func (s *Scheduler) ModuleFinished(path string) error {
	return s.awaitClosure(path, make(map[string]struct{}))
}

func (s *Scheduler) awaitClosure(path string, visited map[string]struct{}) error {
	if _, ok := visited[path]; ok {
		return nil
	}
	visited[path] = struct{}{}

	if f, ok := s.GetInFlight(path); ok {
		if err := f.Wait(); err != nil {
			return err
		}
	}

	m, ok := s.graph.Get(path)
	if !ok {
		return nil
	}
	if err := m.CompilationError(); err != nil {
		return err
	}

	for _, dep := range m.Dependencies() {
		if err := s.awaitClosure(dep, visited); err != nil {
			return err
		}
	}
	return nil
}
