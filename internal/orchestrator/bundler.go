// Package orchestrator ties every other component into the end-to-end
// compile-request lifecycle described in spec.md §4.J: virtual file
// system, resolver, package registry, module graph, transformation
// scheduler, preset registry, evaluation linker and HMR controller, all
// scoped to one Bundler instance the way burstgridgo's App composes one
// registry, one grid model and one executor per run.
package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/webbundler/internal/ctxlog"
	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/hmr"
	"github.com/vk/webbundler/internal/linker"
	"github.com/vk/webbundler/internal/pkgregistry"
	"github.com/vk/webbundler/internal/preset"
	"github.com/vk/webbundler/internal/resolver"
	"github.com/vk/webbundler/internal/scheduler"
	"github.com/vk/webbundler/internal/shim"
	"github.com/vk/webbundler/internal/vfs"
)

// Status is one of the linear phases a compile request moves through,
// per spec.md §4.J.
type Status string

const (
	StatusInitializing           Status = "initializing"
	StatusInstallingDependencies Status = "installing-dependencies"
	StatusTranspiling            Status = "transpiling"
	StatusEvaluating             Status = "evaluating"
	StatusDone                   Status = "done"
	StatusError                  Status = "error"
)

// Config configures the ambient pieces of a Bundler that don't change
// across compile requests: CDN endpoints, retry policy, HTTP client,
// logging. Presets beyond vanilla are added through RegisterPreset.
type Config struct {
	Registry pkgregistry.Config
	Client   pkgregistry.HTTPDoer
	Logger   *slog.Logger
	LogWriter io.Writer
}

// Bundler is one isolated compilation session: its own FS, graph,
// resolver cache, registry mount table and goja runtime. Multiple
// Bundlers never share state, matching spec.md §3's "owned entirely by
// one Bundler instance" invariant.
type Bundler struct {
	mu sync.Mutex

	logger *slog.Logger
	ctx    context.Context

	fs       *vfs.FS
	resolver *resolver.Resolver
	registry *pkgregistry.Registry
	graph    *graph.Graph
	presets  *preset.Registry
	linker   *linker.Linker
	sched    *scheduler.Scheduler

	activeTemplate   string
	activePreset     *preset.Preset
	firstLoad        bool
	lastDepsHash     string
	lastPackageJSON  string
	status           Status
	statusHistory    []Status
	entryPath        string

	statusListener func(Status)
}

// New constructs a Bundler. Its own memory-layer FS is seeded with the
// built-in shims immediately, per spec.md §4.I "on bundler construction".
func New(cfg Config) *Bundler {
	logger := cfg.Logger
	if logger == nil {
		out := cfg.LogWriter
		if out == nil {
			out = io.Discard
		}
		logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)

	fs := vfs.New()
	shim.Seed(fs)

	reg := pkgregistry.New(cfg.Registry, cfg.Client)
	fs.AddLayer(vfs.NewPackageLayer(reg))

	g := graph.NewGraph()
	res := resolver.New(fs)

	presets := preset.NewRegistry()
	preset.RegisterBuiltins(presets)
	presets.RegisterPreset(preset.Vanilla())

	l := linker.New(g, nil)

	b := &Bundler{
		logger:    logger,
		ctx:       ctx,
		fs:        fs,
		resolver:  res,
		registry:  reg,
		graph:     g,
		presets:   presets,
		linker:    l,
		firstLoad: true,
		status:    StatusInitializing,
	}
	l.SetShimMaterializer(b)
	return b
}

// RegisterPreset exposes the preset registry so host binaries can add
// framework-specific presets (react, vue, ...) beyond vanilla.
func (b *Bundler) RegisterPreset(p *preset.Preset) {
	b.presets.RegisterPreset(p)
}

// OnStatusChange installs fn to be called, synchronously, on every phase
// transition (spec.md §6's outbound `status` message). The transport
// layer's session is the only expected subscriber; at most one listener
// is kept per Bundler, matching its one-connection-per-instance lifetime.
func (b *Bundler) OnStatusChange(fn func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusListener = fn
}

// Graph exposes the module graph, primarily for the transport layer's
// module-map snapshots and the HMR controller's change propagation.
func (b *Bundler) Graph() *graph.Graph { return b.graph }

// FS exposes the virtual file system, primarily so the transport layer
// can install an ExternalResolver for the async FS bridge (spec.md
// §4.A).
func (b *Bundler) FS() *vfs.FS { return b.fs }

// Reset tears down all per-session state: module graph, resolver cache,
// goja runtime. Per spec.md §3 Lifecycle, this is the only way a
// Bundler's graph and linker state are destroyed short of discarding the
// whole Bundler.
func (b *Bundler) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph.Reset()
	b.resolver.ResetCache()
	b.linker.ResetAll()
	b.activePreset = nil
	b.activeTemplate = ""
	b.firstLoad = true
	b.lastDepsHash = ""
	b.lastPackageJSON = ""
}

// Eval runs an arbitrary snippet against this Bundler's evaluation
// runtime, for the console REPL pass-through of spec.md §6.
func (b *Bundler) Eval(command string) (string, error) {
	return b.linker.EvalExpression(command)
}

// PropagateEdit runs the HMR escalation decision for an edited path and
// returns it, so a caller can decide whether to re-evaluate in place or
// trigger a full reload. Compile runs the same decision itself for the
// paths a compile request changes.
func (b *Bundler) PropagateEdit(path string) hmr.Decision {
	return hmr.PropagateChange(b.graph, path)
}

func (b *Bundler) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.statusHistory = append(b.statusHistory, s)
	listener := b.statusListener
	b.mu.Unlock()

	ctxlog.FromContext(b.ctx).Debug("status transition", "status", string(s))
	if listener != nil {
		listener(s)
	}
}

// Status returns the current phase.
func (b *Bundler) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}
