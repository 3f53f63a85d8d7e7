package hmr_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/hmr"
)

// sortDirty makes decision.Dirty comparisons order-independent: the walk
// visits initiators in whatever order graph.Initiators returns them, and
// that order is not part of the contract.
var sortDirty = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestPropagateChange_EntryWithNoAcceptorsFullReloads(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.GetOrCreate("/index.js")

	decision := hmr.PropagateChange(g, "/index.js")

	require.True(t, decision.FullReload)
	if diff := cmp.Diff([]string{"/index.js"}, decision.Dirty, sortDirty); diff != "" {
		t.Errorf("dirty set mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagateChange_AcceptingAncestorStopsEscalation(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.AddDependencyEdge("/b.js", "/a.js")
	g.AddDependencyEdge("/entry.js", "/b.js")
	g.GetOrCreate("/a.js")
	b := g.GetOrCreate("/b.js")
	g.GetOrCreate("/entry.js")

	b.Hot.Accept(nil)

	decision := hmr.PropagateChange(g, "/a.js")

	require.False(t, decision.FullReload)
	if diff := cmp.Diff([]string{"/a.js", "/b.js"}, decision.Dirty, sortDirty); diff != "" {
		t.Errorf("dirty set mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagateChange_NoAcceptorsAnywhereFullReloads(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.AddDependencyEdge("/b.js", "/a.js")
	g.AddDependencyEdge("/entry.js", "/b.js")
	g.GetOrCreate("/a.js")
	g.GetOrCreate("/b.js")
	g.GetOrCreate("/entry.js")

	decision := hmr.PropagateChange(g, "/a.js")

	require.True(t, decision.FullReload)
	if diff := cmp.Diff([]string{"/a.js", "/b.js", "/entry.js"}, decision.Dirty, sortDirty); diff != "" {
		t.Errorf("dirty set mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagateChange_MarksDirtyModulesOnGraph(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	a := g.GetOrCreate("/a.js")

	hmr.PropagateChange(g, "/a.js")

	require.True(t, a.Hot.Dirty())
}

func TestMarkInvalidated_SetsInvalidatedFlag(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	m := g.GetOrCreate("/a.js")

	hmr.MarkInvalidated(g, "/a.js")

	require.True(t, m.Hot.IsInvalidated())
}
