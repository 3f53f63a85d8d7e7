// Package integrationtest exercises the bundler engine end to end through
// orchestrator.Bundler's public surface, the way spec.md §8's testable
// properties and concrete scenarios describe it: whole-pipeline behavior
// (resolve, schedule, transform, link, evaluate) rather than any single
// package in isolation.
//
// Two scenarios are adapted from spec.md's literal wording because this
// engine's boundaries deliberately stop short of them: the "console hook"
// and real ES import/export transpilation are both named external
// collaborators (spec.md §1), so project fixtures here use
// require()/module.exports — the one module format the identity-js
// stand-in transformer can actually round-trip through goja — and read
// results back from globalThis through Bundler.Eval rather than from
// console output.
package integrationtest_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/hmr"
	"github.com/vk/webbundler/internal/orchestrator"
	"github.com/vk/webbundler/internal/pkgregistry"
	"github.com/vk/webbundler/internal/preset"
	"github.com/vk/webbundler/internal/resolver"
	"github.com/vk/webbundler/internal/scheduler"
	"github.com/vk/webbundler/internal/shim"
	"github.com/vk/webbundler/internal/vfs"
)

type fakeDoerFunc func(*http.Request) (*http.Response, error)

func (f fakeDoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newBundler() *orchestrator.Bundler {
	return orchestrator.New(orchestrator.Config{})
}

// --- Testable properties (spec.md §8, numbered 1-7) ---

func TestProperty1_ResolverDeterminism(t *testing.T) {
	t.Parallel()

	fs := vfs.New()
	fs.WriteSync("/index.js", []byte(`require("./util")`))
	fs.WriteSync("/util.js", []byte(`module.exports = 1;`))
	res := resolver.New(fs)

	first, err := res.Resolve("./util", "/index.js", resolver.Options{})
	require.NoError(t, err)

	// Call again, and from a cold resolver with the same FS, to confirm
	// the answer never depends on prior call ordering or cache state.
	second, err := res.Resolve("./util", "/index.js", resolver.Options{})
	require.NoError(t, err)
	require.Equal(t, first, second)

	cold := resolver.New(fs)
	third, err := cold.Resolve("./util", "/index.js", resolver.Options{})
	require.NoError(t, err)
	require.Equal(t, first, third)
}

func TestProperty2_AtMostOneCompile(t *testing.T) {
	t.Parallel()

	fs := vfs.New()
	fs.WriteSync("/index.js", []byte(`module.exports = 1;`))

	g := graph.NewGraph()
	res := resolver.New(fs)
	presets := preset.NewRegistry()

	var calls int32
	presets.RegisterTransformer("counting-js", func(in preset.TransformInput, _ any) (preset.TransformResult, error) {
		atomic.AddInt32(&calls, 1)
		return preset.TransformResult{Code: in.Code}, nil
	})
	p := &preset.Preset{
		Name:            "counting",
		EntryCandidates: []string{"/index.js"},
		Rules: []preset.TransformRule{
			{Extensions: []string{".js"}, Chain: []preset.ChainStep{{Transformer: "counting-js"}}},
		},
	}
	presets.RegisterPreset(p)

	sched := scheduler.New(fs, g, res, presets, p, resolver.Options{})

	const n = 20
	futures := make([]*scheduler.Future, n)
	for i := 0; i < n; i++ {
		futures[i] = sched.TransformModule("/index.js")
	}
	for _, f := range futures {
		require.NoError(t, f.Wait())
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProperty3_DependencyClosure(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `var a = require("./a"); var b = require("./b"); module.exports = a + b;`},
			{Path: "/a.js", Code: `var c = require("./c"); module.exports = c + 1;`},
			{Path: "/c.js", Code: `module.exports = 10;`},
			{Path: "/b.js", Code: `module.exports = 5;`},
		},
	})
	require.NoError(t, err)
	require.NoError(t, result.Evaluate())

	for _, m := range b.Graph().All() {
		require.NotNil(t, m.Compiled(), "module %s should be compiled", m.Path)
		require.NoError(t, m.CompilationError(), "module %s should not have a compile error", m.Path)
	}
}

func TestProperty4_CycleTolerance(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/package.json", Code: `{"main": "./a.js"}`},
			{Path: "/a.js", Code: `
				var b = require("./b");
				exports.name = "a";
				exports.bName = b.name;
			`},
			{Path: "/b.js", Code: `
				exports.name = "b";
				var a = require("./a");
				exports.aNameAtLoadTime = a.name;
			`},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "/a.js", result.EntryPath)
	require.NoError(t, result.Evaluate())
}

func TestProperty5_HMREscalation(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph()
	g.GetOrCreate("/entry.js")
	g.GetOrCreate("/leaf.js")
	g.AddDependencyEdge("/entry.js", "/leaf.js")

	// No ancestor has accepted: editing the leaf escalates to a full
	// reload.
	decision := hmr.PropagateChange(g, "/leaf.js")
	require.True(t, decision.FullReload)

	// /entry.js accepts: the same edit now resolves in place.
	entry, ok := g.Get("/entry.js")
	require.True(t, ok)
	entry.Hot.Accept(nil)

	decision = hmr.PropagateChange(g, "/leaf.js")
	require.False(t, decision.FullReload)
}

func TestProperty6_ShimRouting(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `
				var a = require("stream");
				var b = require("node:stream");
				module.exports = a === b;
			`},
		},
	})
	require.NoError(t, err)
	require.Contains(t, result.ModuleMap, shim.Path("stream")+":")
	require.NoError(t, result.Evaluate())
}

func TestProperty7_CDNFallback(t *testing.T) {
	t.Parallel()

	var primaryCalls, secondaryCalls int32
	doer := fakeDoerFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.String() {
		case "https://primary.example.com/manifest":
			return httpResponse(200, `[{"name":"left-pad","version":"1.0.0","depth":0}]`), nil
		case "https://primary.example.com/pkg/left-pad@1.0.0":
			atomic.AddInt32(&primaryCalls, 1)
			return nil, http.ErrServerClosed
		case "https://secondary.example.com/pkg/left-pad@1.0.0":
			atomic.AddInt32(&secondaryCalls, 1)
			return httpResponse(200, `module.exports = function leftPad(s){return s;};`), nil
		default:
			return nil, http.ErrServerClosed
		}
	})

	reg := pkgregistry.New(pkgregistry.Config{
		ManifestURL: "https://primary.example.com/manifest",
		PackageURLs: []string{
			"https://primary.example.com/pkg/%s",
			"https://secondary.example.com/pkg/%s",
		},
		Retry: pkgregistry.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1},
	}, doer)

	entries, err := reg.FetchManifest(context.Background(), map[string]string{"left-pad": "1.0.0"})
	require.NoError(t, err)

	err = reg.PreloadModules(context.Background(), entries)
	require.NoError(t, err)
	require.Greater(t, atomic.LoadInt32(&secondaryCalls), int32(0))

	_, found := reg.LookupSync("/node_modules/left-pad/index.js")
	require.True(t, found)
}

// --- Concrete end-to-end scenarios (spec.md §8, S1-S6) ---

func TestS1_VanillaJS(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.html", Code: `<script src="index.js"></script>`},
			{Path: "/index.js", Code: `globalThis.__rendered = "hi";`},
		},
	})
	require.NoError(t, err)
	require.False(t, result.HTMLOnly)
	require.Equal(t, "/index.js", result.EntryPath)
	require.NoError(t, result.Evaluate())
	require.Equal(t, orchestrator.StatusDone, b.Status())

	rendered, err := b.Eval("__rendered")
	require.NoError(t, err)
	require.Equal(t, "hi", rendered)
}

func TestS2_RelativeImport(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `var x = require("./m"); globalThis.__out = x; module.exports = x;`},
			{Path: "/m.js", Code: `module.exports = 42;`},
		},
	})
	require.NoError(t, err)
	require.NoError(t, result.Evaluate())

	out, err := b.Eval("__out")
	require.NoError(t, err)
	require.Equal(t, "42", out)
}

func TestS3_ExtensionProbing(t *testing.T) {
	t.Parallel()

	b := newBundler()
	result, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.ts", Code: `var v = require("./util"); module.exports = v;`},
			{Path: "/util.tsx", Code: `module.exports = "ok";`},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "/index.ts", result.EntryPath)
	require.Contains(t, result.ModuleMap, "/util.tsx:")
	require.NoError(t, result.Evaluate())
}

func TestS4_HMRAccept(t *testing.T) {
	t.Parallel()

	b := newBundler()
	first, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template:        "vanilla",
		HasFileResolver: true,
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `
				var leaf = require("./leaf");
				module.hot.accept();
				module.exports = leaf;
			`},
			{Path: "/leaf.js", Code: `
				var disposeCount = 0;
				module.hot.dispose(function() { disposeCount++; globalThis.__disposeCount = disposeCount; });
				module.exports = 1;
			`},
		},
	})
	require.NoError(t, err)
	require.NoError(t, first.Evaluate())

	// No manual hmr.PropagateChange/b.PropagateEdit call here: Compile
	// itself propagates every changed path through the HMR controller
	// now, the same way the real websocket transport's handleCompile
	// does, so this exercises the production path end to end.
	second, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template:        "vanilla",
		HasFileResolver: true,
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `
				var leaf = require("./leaf");
				module.hot.accept();
				module.exports = leaf;
			`},
			{Path: "/leaf.js", Code: `
				var disposeCount = 0;
				module.hot.dispose(function() { disposeCount++; globalThis.__disposeCount = disposeCount; });
				module.exports = 2;
			`},
		},
	})
	require.NoError(t, err)
	require.False(t, second.FullReload)
	require.NoError(t, second.Evaluate())

	count, err := b.Eval("__disposeCount")
	require.NoError(t, err)
	require.Equal(t, "1", count)
}

func TestS5_EmptyProject(t *testing.T) {
	t.Parallel()

	b := newBundler()
	_, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files:    nil,
	})

	// No JS entry resolves and no /index.html exists either: the
	// orchestrator has nothing to treat as HTML-only, so this surfaces as
	// EntryPointUnresolved for the transport layer to translate into an
	// empty-state UI (spec.md §7).
	require.Error(t, err)
	require.Contains(t, err.Error(), "entry")
}

func TestS6_MissingDependency(t *testing.T) {
	t.Parallel()

	b := newBundler()
	_, err := b.Compile(context.Background(), orchestrator.CompileRequest{
		Template: "vanilla",
		Files: []orchestrator.FileUpdate{
			{Path: "/index.js", Code: `require("./does-not-exist");`},
		},
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "does-not-exist")
	require.Contains(t, err.Error(), "/index.js")
}
