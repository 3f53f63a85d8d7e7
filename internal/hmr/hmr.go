// Package hmr implements the HMR controller described in spec.md §4.H.
// The per-module bookkeeping (accept/dispose handlers, dirty/invalidated
// flags, data) lives on graph.HMRState, since every Module has exactly
// one regardless of whether HMR ever fires; this package owns the
// decision logic layered on top of it: which modules a file edit marks
// dirty, and whether that edit can be satisfied in place or must
// escalate to a full reload.
package hmr

import "github.com/vk/webbundler/internal/graph"

// Decision is the outcome of propagating an edit to changedPath through
// the graph.
type Decision struct {
	// Dirty holds every module that must be re-evaluated, in no
	// particular order (the linker orders them initiator-first).
	Dirty []string
	// FullReload is true when changedPath (or a module on every path
	// back to every entry) has no accepting ancestor, so the edit
	// cannot be satisfied by re-evaluating in place.
	FullReload bool
}

// PropagateChange implements spec.md §4.H's escalation rule: starting
// from changedPath, walk initiators outward. A module that has called
// accept() absorbs the change — it, changedPath and the modules on the
// path between them are marked dirty, but propagation up the graph stops
// there. A module that never called accept() and has no initiators of its
// own (a top of the graph, such as the entry) cannot absorb anything,
// which escalates to a full reload.
func PropagateChange(g *graph.Graph, changedPath string) Decision {
	visited := make(map[string]struct{})
	var dirty []string
	fullReload := false

	var walk func(path string, isOrigin bool)
	walk = func(path string, isOrigin bool) {
		if _, ok := visited[path]; ok {
			return
		}
		visited[path] = struct{}{}

		m, ok := g.Get(path)
		if !ok {
			return
		}
		dirty = append(dirty, path)

		if !isOrigin && m.Hot.IsHotAccepted() {
			// This ancestor opted in; the change stops propagating here.
			return
		}

		initiators := g.Initiators(path)
		if len(initiators) == 0 {
			if !m.Hot.IsHotAccepted() {
				fullReload = true
			}
			return
		}
		for _, initiator := range initiators {
			walk(initiator, false)
		}
	}

	walk(changedPath, true)

	for _, path := range dirty {
		if m, ok := g.Get(path); ok {
			m.Hot.MarkDirty()
		}
	}

	return Decision{Dirty: dirty, FullReload: fullReload}
}

// MarkInvalidated flags path for a full recompile rather than an
// in-place hot swap, per spec.md §4.H / §4.G step 2. Callers should
// restart the compile once this is observed.
func MarkInvalidated(g *graph.Graph, path string) {
	if m, ok := g.Get(path); ok {
		m.Hot.Invalidate()
	}
}
