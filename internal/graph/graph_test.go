package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/graph"
)

func TestGraph_GetOrCreate_IsIdempotent(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()

	a := g.GetOrCreate("/index.js")
	b := g.GetOrCreate("/index.js")

	require.Same(t, a, b)
}

func TestGraph_AddDependencyEdge_RegistersInitiator(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.AddDependencyEdge("/index.js", "/util.js")

	require.ElementsMatch(t, []string{"/index.js"}, g.Initiators("/util.js"))
}

func TestGraph_ClearInitiatorsFrom_RemovesStaleEdges(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.AddDependencyEdge("/index.js", "/util.js")
	g.AddDependencyEdge("/index.js", "/other.js")

	g.ClearInitiatorsFrom("/index.js", []string{"/util.js", "/other.js"})

	require.Empty(t, g.Initiators("/util.js"))
	require.Empty(t, g.Initiators("/other.js"))
}

func TestModule_SetCompiled_PreservesResolvedDependencies(t *testing.T) {
	t.Parallel()

	m := graph.New("/index.js")
	m.ResolveDependency("./util", "/util.js")
	m.SetCompiled([]byte("compiled"), []string{"./util"})

	require.True(t, m.IsCompiled())
	resolved, ok := m.ResolvedPathFor("./util")
	require.True(t, ok)
	require.Equal(t, "/util.js", resolved)
}

func TestModule_SetCompiled_DropsGoneSpecifiers(t *testing.T) {
	t.Parallel()

	m := graph.New("/index.js")
	m.ResolveDependency("./util", "/util.js")
	m.SetCompiled([]byte("v1"), []string{"./util"})

	m.SetCompiled([]byte("v2"), []string{"./other"})

	_, ok := m.ResolvedPathFor("./util")
	require.False(t, ok)
	require.ElementsMatch(t, []string{"./other"}, m.UnresolvedSpecifiers())
}

func TestModule_SetCompilationError_ClearsCompiled(t *testing.T) {
	t.Parallel()

	m := graph.New("/index.js")
	m.SetCompiled([]byte("v1"), nil)
	require.True(t, m.IsCompiled())

	m.SetCompilationError(errors.New("boom"))

	require.False(t, m.IsCompiled())
}

func TestHMRState_AcceptAndRunHandlers(t *testing.T) {
	t.Parallel()

	h := &graph.HMRState{}
	var accepted, disposed bool
	var disposedData any

	h.Accept(func() { accepted = true })
	h.Dispose(func(data any) { disposed = true; disposedData = data })
	h.Data = "last-state"

	h.RunDispose()
	h.RunAccept()

	require.True(t, disposed)
	require.True(t, accepted)
	require.Equal(t, "last-state", disposedData)
}

func TestHMRState_InvalidateAndReset(t *testing.T) {
	t.Parallel()

	h := &graph.HMRState{}
	h.Invalidate()
	require.True(t, h.IsInvalidated())

	h.Reset()
	require.False(t, h.IsInvalidated())
}
