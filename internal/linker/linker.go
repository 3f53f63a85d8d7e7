// Package linker implements the evaluation linker described in spec.md
// §4.G: it executes compiled modules in topological order behind a
// synchronous require(spec) lookup function, using an embedded ECMAScript
// interpreter (github.com/dop251/goja) since this is a standalone Go
// binary rather than in-browser code that could lean on a native eval.
//
// The wrapper-function shape (module, exports, require injected as
// arguments around the compiled body) and the require/cache/modules
// table it closes over are grounded on the reference runtime string
// found in the retrieval pack (a require/cache table wired to
// window.__modules__); here that string becomes a real Go-backed
// require implemented against the module graph instead of a static
// JS object literal, and the interpreter is goja rather than a
// browser's native eval.
package linker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/vk/webbundler/internal/bundlerr"
	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/shim"
)

// ShimMaterializer seeds the shim's compiled form once and links it into
// the graph on first request, so the shim module exists without every
// project needing require-time special-casing.
type ShimMaterializer interface {
	MaterializeShim(name string) (path string, err error)
}

// Linker owns the one goja runtime a Bundler evaluates all of its
// modules inside. goja.Runtime is not goroutine-safe, so every public
// method serializes through mu — spec.md §5's "single-threaded
// cooperative" model implemented literally rather than metaphorically.
type Linker struct {
	mu           sync.Mutex
	vm           *goja.Runtime
	g            *graph.Graph
	shims        ShimMaterializer
	exports      map[string]goja.Value // cached, per module path
	runtimeOrder []string              // registration order of runtime modules
}

// New constructs a Linker bound to g. shims may be nil if the caller has
// no on-demand shim materialization to offer (tests, mostly).
func New(g *graph.Graph, shims ShimMaterializer) *Linker {
	return &Linker{
		vm:      goja.New(),
		g:       g,
		shims:   shims,
		exports: make(map[string]goja.Value),
	}
}

// SetShimMaterializer installs the callback require() uses to materialize
// a built-in shim on demand, once the owning Bundler (which implements
// ShimMaterializer) has finished constructing itself.
func (l *Linker) SetShimMaterializer(shims ShimMaterializer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shims = shims
}

// RegisterRuntimeModule records path as a runtime module to be evaluated,
// in registration order, before the entry on first run (spec.md §4.G
// step 1). Typically called once per built-in shim actually required by
// the project.
func (l *Linker) RegisterRuntimeModule(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.runtimeOrder {
		if p == path {
			return
		}
	}
	l.runtimeOrder = append(l.runtimeOrder, path)
}

// EvaluateFirstRun evaluates every registered runtime module in
// registration order, then the entry module, per spec.md §4.G step 1.
func (l *Linker) EvaluateFirstRun(entryPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.runtimeOrder {
		if _, err := l.evaluateLocked(p); err != nil {
			return err
		}
	}
	_, err := l.evaluateLocked(entryPath)
	return err
}

// EvaluateDirty re-evaluates only the modules in paths, which callers
// are expected to have already ordered initiator-first (spec.md §4.G
// step 2). Modules whose HMR state is Invalidated are skipped and
// reported back to the caller; the linker does not reset them itself.
func (l *Linker) EvaluateDirty(paths []string) (invalidated []string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range paths {
		m, ok := l.g.Get(p)
		if !ok {
			continue
		}
		if m.Hot.IsInvalidated() {
			invalidated = append(invalidated, p)
			continue
		}
		if !m.Hot.Dirty() {
			continue
		}
		m.Hot.RunDispose()
		delete(l.exports, p)
		if _, err := l.evaluateLocked(p); err != nil {
			return invalidated, err
		}
		m.Hot.RunAccept()
		m.Hot.ClearDirty()
	}
	return invalidated, nil
}

// EvalExpression runs an arbitrary snippet inside the same runtime every
// module shares, for the console REPL pass-through described in spec.md
// §6 ("evaluate {command}"). The result is rendered with goja's default
// string coercion, matching a REPL's usual one-line echo.
func (l *Linker) EvalExpression(code string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.vm.RunString(code)
	if err != nil {
		return "", &bundlerr.EvaluationError{Path: "<repl>", Err: err}
	}
	if v == nil || goja.IsUndefined(v) {
		return "undefined", nil
	}
	return v.String(), nil
}

// Exports returns the cached exports object for an already-evaluated
// module, or false if it has not been evaluated (or was reset).
func (l *Linker) Exports(path string) (goja.Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.exports[path]
	return v, ok
}

// buildHotHandle constructs the JS-facing object a module sees as
// `module.hot` (and receives directly as `__hot__`): accept(handler?),
// dispose(handler), invalidate() and a data property, per spec.md §3
// "Per-module hot state"; no status flags are exposed on it. Calls are forwarded straight
// into the graph.HMRState the scheduler and EvaluateDirty already share,
// so a project opting in to HMR from its own source does the same thing
// PropagateChange's Go-level callers do.
func (l *Linker) buildHotHandle(hot *graph.HMRState) *goja.Object {
	obj := l.vm.NewObject()
	_ = obj.Set("accept", func(call goja.FunctionCall) goja.Value {
		var handler func()
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			handler = func() {
				if _, err := fn(goja.Undefined()); err != nil {
					panic(l.vm.ToValue(err.Error()))
				}
			}
		}
		hot.Accept(handler)
		return goja.Undefined()
	})
	_ = obj.Set("dispose", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		hot.Dispose(func(data any) {
			if _, err := fn(goja.Undefined(), l.vm.ToValue(data)); err != nil {
				panic(l.vm.ToValue(err.Error()))
			}
		})
		return goja.Undefined()
	})
	_ = obj.Set("invalidate", func(call goja.FunctionCall) goja.Value {
		hot.Invalidate()
		return goja.Undefined()
	})
	_ = obj.Set("data", l.vm.ToValue(hot.Data))
	return obj
}

// evaluateLocked runs (or returns the cached result of) evaluating path.
// Caller must hold mu.
func (l *Linker) evaluateLocked(path string) (goja.Value, error) {
	if cached, ok := l.exports[path]; ok {
		return cached, nil
	}

	m, ok := l.g.Get(path)
	if !ok {
		return nil, &bundlerr.ModuleNotFound{Path: path}
	}
	if err := m.CompilationError(); err != nil {
		return nil, err
	}
	code := m.Compiled()
	if code == nil {
		return nil, &bundlerr.ModuleNotFound{Path: path}
	}

	exportsObj := l.vm.NewObject()
	moduleObj := l.vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	// Pre-register a partial exports object before running the body, so
	// a circular require(path) observes the same object this evaluation
	// will finish populating — CommonJS's standard circular-import
	// semantics (spec.md §4.G step 4).
	l.exports[path] = exportsObj

	requireFn := func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		resolved, ok := m.ResolvedPathFor(spec)
		if !ok {
			if name, isBuiltin := shim.IsBuiltinSpecifier(spec); isBuiltin && l.shims != nil {
				shimPath, err := l.shims.MaterializeShim(name)
				if err != nil {
					panic(l.vm.ToValue(err.Error()))
				}
				resolved = shimPath
			} else {
				panic(l.vm.ToValue((&bundlerr.ModuleNotFound{Path: spec, Origin: path}).Error()))
			}
		}
		depExports, err := l.evaluateLocked(resolved)
		if err != nil {
			panic(l.vm.ToValue(err.Error()))
		}
		return depExports
	}

	hotObj := l.buildHotHandle(m.Hot)
	_ = moduleObj.Set("hot", hotObj)

	// Parameter order matches spec.md §4.G's runtime require contract:
	// (require, module, exports, globals, __hot__). globals is the one
	// goja.Runtime a Bundler's modules all share, exposed explicitly
	// rather than relying on implicit global leakage.
	wrapperSrc := "(function(require, module, exports, globals, __hot__) {\n" +
		string(code) +
		"\n})\n//# sourceURL=" + path + "\n"

	wrapperVal, err := l.vm.RunString(wrapperSrc)
	if err != nil {
		delete(l.exports, path)
		return nil, &bundlerr.EvaluationError{Path: path, Err: err}
	}
	wrapper, ok := goja.AssertFunction(wrapperVal)
	if !ok {
		delete(l.exports, path)
		return nil, &bundlerr.EvaluationError{Path: path, Err: fmt.Errorf("compiled module did not produce a callable wrapper")}
	}

	_, err = wrapper(goja.Undefined(), l.vm.ToValue(requireFn), moduleObj, exportsObj, l.vm.GlobalObject(), hotObj)
	if err != nil {
		delete(l.exports, path)
		return nil, &bundlerr.EvaluationError{Path: path, Stack: stackLines(err), Err: err}
	}

	finalExports := moduleObj.Get("exports")
	l.exports[path] = finalExports
	return finalExports, nil
}

func stackLines(err error) []string {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return nil
	}
	return strings.Split(ex.String(), "\n")
}

// ResetAll clears every cached export and the runtime-module registration
// order, used when a Bundler is fully reset (spec.md §3 Lifecycle).
func (l *Linker) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exports = make(map[string]goja.Value)
	l.runtimeOrder = nil
	l.vm = goja.New()
}

// DirtyInitiatorFirstOrder walks g's initiator edges from every dirty
// module outward and returns a slice ordered so that an initiator always
// appears before the modules reachable only through it — the order
// spec.md §4.G step 2 requires ("initiator-first order").
func DirtyInitiatorFirstOrder(g *graph.Graph, dirty []string) []string {
	visited := make(map[string]struct{})
	var order []string
	var visit func(path string)
	visit = func(path string) {
		if _, ok := visited[path]; ok {
			return
		}
		visited[path] = struct{}{}
		initiators := g.Initiators(path)
		sort.Strings(initiators)
		for _, initiator := range initiators {
			visit(initiator)
		}
		order = append(order, path)
	}
	sorted := append([]string(nil), dirty...)
	sort.Strings(sorted)
	for _, path := range sorted {
		visit(path)
	}
	// visit() appends a module only after all of its initiators, so order
	// is already initiator-first.
	return order
}
