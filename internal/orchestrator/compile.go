package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vk/webbundler/internal/bundlerr"
	"github.com/vk/webbundler/internal/ctxlog"
	"github.com/vk/webbundler/internal/graph"
	"github.com/vk/webbundler/internal/hmr"
	"github.com/vk/webbundler/internal/linker"
	"github.com/vk/webbundler/internal/resolver"
	"github.com/vk/webbundler/internal/scheduler"
	"github.com/vk/webbundler/internal/shim"
)

// FileUpdate is one entry of a compile request's files map: the path the
// project names it and the code it currently holds.
type FileUpdate struct {
	Path string
	Code string
}

// CompileRequest is the inbound compile envelope described in spec.md §6.
type CompileRequest struct {
	Files           []FileUpdate
	Template        string
	LogLevel        string
	HasFileResolver bool
}

// CompileResult is everything the host transport needs to answer a
// compile request: the module-map snapshot for observers, the evaluate
// thunk, and whether a full reload (rather than incremental evaluation)
// is required.
type CompileResult struct {
	ModuleMap   map[string]string // "path:" -> compiled code, per spec.md §6
	EntryPath   string
	FullReload  bool
	HTMLOnly    bool
	DefaultHTML string
	Evaluate    func() error
}

type packageJSON struct {
	Main         string            `json:"main"`
	Dependencies map[string]string `json:"dependencies"`
}

// Compile runs one compile request through the ten steps of spec.md
// §4.J. It is not safe to call concurrently on the same Bundler; the
// transport layer serializes requests per connection.
func (b *Bundler) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	ctx = ctxlog.WithLogger(ctx, b.logger)
	logger := ctxlog.FromContext(ctx)

	b.setStatus(StatusInitializing)

	// Resolver results are memoized for one compile request only.
	b.resolver.ResetCache()

	// Step 2: on first load, reset the module map and preset.
	if b.firstLoad {
		b.graph.Reset()
	}

	// Step 3: initialize preset for the requested template on first use,
	// and again whenever the requested template changes.
	if b.activePreset == nil || b.activeTemplate != req.Template {
		p, ok := b.presets.Preset(req.Template)
		if !ok {
			return nil, &bundlerr.PresetMissing{Template: req.Template}
		}
		b.activePreset = p
		b.activeTemplate = req.Template
		b.sched = scheduler.New(b.fs, b.graph, b.resolver, b.presets, b.activePreset, resolver.Options{})
		b.sched.SetSpecifierResolver(b.resolveWithShims)
	}

	// Step 4: emit installing-dependencies.
	b.setStatus(StatusInstallingDependencies)

	// Step 5: diff files against FS; write changes; reset compilation on
	// changed modules.
	changedPaths := b.applyFileUpdates(req.Files)

	// Step 6: if not first load and HMR is disabled entirely (no file
	// resolver channel, i.e. a one-shot CLI build), a changed file forces
	// a full reload and compilation stops here.
	if !b.firstLoad && !req.HasFileResolver && len(changedPaths) > 0 {
		return &CompileResult{FullReload: true}, nil
	}

	// Step 6b: HMR escalation (spec.md §4.H / step 5). Each edited path is
	// propagated through the HMR controller: an edit reaching an accepting
	// ancestor marks it and the edited module dirty for EvaluateDirty below;
	// an edit with no accepting ancestor anywhere up its initiator chain
	// can't be absorbed in place and forces a full reload instead.
	if !b.firstLoad {
		for _, p := range changedPaths {
			if decision := hmr.PropagateChange(b.graph, p); decision.FullReload {
				return &CompileResult{FullReload: true}, nil
			}
		}
	}

	// Step 7: first load, or package.json changed -> parse it, augment
	// dependencies, fetch manifest, preload packages.
	pkgJSONPath := "/package.json"
	pkgChanged := b.firstLoad || containsPath(changedPaths, pkgJSONPath)
	forceReload := false
	if pkgChanged {
		reload, err := b.installDependencies(ctx, pkgJSONPath)
		if err != nil {
			b.setStatus(StatusError)
			return nil, err
		}
		forceReload = reload
	}
	if forceReload {
		return &CompileResult{FullReload: true}, nil
	}

	// Step 8: HTML-only project detection.
	if b.isHTMLOnly() {
		b.setStatus(StatusDone)
		b.firstLoad = false
		return &CompileResult{
			HTMLOnly:    true,
			DefaultHTML: b.activePreset.DefaultHTML,
			Evaluate:    func() error { return nil },
		}, nil
	}

	// Step 9: transpiling. Runtime modules (built-in shims actually
	// required) are registered by MaterializeShim when the scheduler
	// resolves a built-in specifier during this transform, or when the
	// linker's require() falls back to one; here we only transform the
	// entry and its closure.
	b.setStatus(StatusTranspiling)
	entry, err := b.resolveEntry(pkgJSONPath)
	if err != nil {
		b.setStatus(StatusError)
		return nil, err
	}
	b.entryPath = entry

	b.sched.TransformModule(entry)
	if err := b.sched.ModuleFinished(entry); err != nil {
		b.setStatus(StatusError)
		return nil, err
	}

	// A changed module outside the entry's own resolution (a dependency
	// the entry already reached on a prior compile, now edited in place)
	// was reset by applyFileUpdates above but never re-discovered by the
	// entry's walk, since the entry itself was already compiled and
	// TransformModule short-circuits on that. Re-transform any such
	// surviving graph module explicitly so its recompiled body actually
	// lands in this snapshot.
	for _, p := range changedPaths {
		if p == entry {
			continue
		}
		if _, ok := b.graph.Get(p); !ok {
			continue
		}
		b.sched.TransformModule(p)
		if err := b.sched.ModuleFinished(p); err != nil {
			b.setStatus(StatusError)
			return nil, err
		}
	}

	// Step 10: mark entry, snapshot the transpiled module map, return the
	// evaluate thunk.
	if m, ok := b.graph.Get(entry); ok {
		m.IsEntry = true
	}
	snapshot := b.snapshotModuleMap()

	firstLoad := b.firstLoad
	b.firstLoad = false

	b.setStatus(StatusEvaluating)
	logger.Info("compile finished, ready to evaluate", "entry", entry, "modules", len(snapshot))

	evaluate := func() error {
		var err error
		if firstLoad {
			err = b.linker.EvaluateFirstRun(entry)
		} else {
			dirty := dirtyModules(b.graph)
			ordered := dirtyInitiatorFirstOrder(b, dirty)
			var invalidated []string
			invalidated, err = b.linker.EvaluateDirty(ordered)
			if len(invalidated) > 0 {
				for _, p := range invalidated {
					if m, ok := b.graph.Get(p); ok {
						m.Hot.Reset()
						m.ResetCompilation()
					}
				}
				return fmt.Errorf("modules invalidated, restart compile: %v", invalidated)
			}
		}
		if err != nil {
			b.setStatus(StatusError)
			return err
		}
		b.setStatus(StatusDone)
		return nil
	}

	return &CompileResult{
		ModuleMap:  snapshot,
		EntryPath:  entry,
		Evaluate:   evaluate,
	}, nil
}

func (b *Bundler) resolveWithShims(specifier, fromPath string) (string, error) {
	if name, ok := shimSpecifier(specifier); ok {
		return b.MaterializeShim(name)
	}
	return b.resolver.Resolve(specifier, fromPath, resolver.Options{})
}

func (b *Bundler) applyFileUpdates(files []FileUpdate) []string {
	var changed []string
	for _, f := range files {
		existing, err := b.fs.ReadSync(f.Path)
		if err == nil && string(existing) == f.Code {
			continue
		}
		b.fs.WriteSync(f.Path, []byte(f.Code))
		changed = append(changed, f.Path)
		if m, ok := b.graph.Get(f.Path); ok {
			m.ResetCompilation()
		}
	}
	return changed
}

func containsPath(paths []string, target string) bool {
	for _, p := range paths {
		if p == target {
			return true
		}
	}
	return false
}

// installDependencies parses package.json (if present), augments its
// dependencies via the active preset, fetches the manifest and preloads
// packages. It returns true if the normalized dependency string changed
// from the previous compile, which forces a full reload per spec.md
// §4.J step 7.
func (b *Bundler) installDependencies(ctx context.Context, pkgJSONPath string) (bool, error) {
	raw, err := b.fs.ReadSync(pkgJSONPath)
	if err != nil {
		return false, nil // no package.json: nothing to install
	}

	var pkg packageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return false, fmt.Errorf("parsing package.json: %w", err)
	}

	deps := pkg.Dependencies
	if deps == nil {
		deps = map[string]string{}
	}
	if b.activePreset.AugmentDependencies != nil {
		deps = b.activePreset.AugmentDependencies(deps)
	}

	hash := hashDeps(deps)
	reload := !b.firstLoad && hash != b.lastDepsHash
	b.lastDepsHash = hash

	entries, err := b.registry.FetchManifest(ctx, deps)
	if err != nil {
		return false, err
	}
	if err := b.registry.PreloadModules(ctx, entries); err != nil {
		return false, err
	}
	b.fs.ResetCache()
	return reload, nil
}

func hashDeps(deps map[string]string) string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s@%s;", name, deps[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// isHTMLOnly implements spec.md §4.J step 8: an HTML file exists, but no
// JS entry candidate resolves and package.json names no "main".
func (b *Bundler) isHTMLOnly() bool {
	if !b.fs.ExistsSync("/index.html") {
		return false
	}
	_, err := b.resolveEntry("/package.json")
	return err != nil
}

// resolveEntry implements spec.md §4.B/§4.F's entry resolution: prefer
// package.json's "main", fall back to the active preset's entry
// candidates in order.
func (b *Bundler) resolveEntry(pkgJSONPath string) (string, error) {
	if raw, err := b.fs.ReadSync(pkgJSONPath); err == nil {
		var pkg packageJSON
		if json.Unmarshal(raw, &pkg) == nil && pkg.Main != "" {
			if resolved, err := b.resolver.Resolve(pkg.Main, "/package.json", resolver.Options{}); err == nil {
				return resolved, nil
			}
		}
	}
	for _, candidate := range b.activePreset.EntryCandidates {
		if b.fs.ExistsSync(candidate) {
			return candidate, nil
		}
	}
	return "", &bundlerr.EntryPointUnresolved{Candidates: b.activePreset.EntryCandidates}
}

// snapshotModuleMap builds the observer-facing module map described in
// spec.md §6: keys are the module path with a trailing colon, values are
// the compiled source.
func (b *Bundler) snapshotModuleMap() map[string]string {
	out := make(map[string]string)
	for _, m := range b.graph.All() {
		if code := m.Compiled(); code != nil {
			out[m.Path+":"] = string(code)
		}
	}
	return out
}

func shimSpecifier(specifier string) (string, bool) {
	return shim.IsBuiltinSpecifier(specifier)
}

// dirtyModules returns every module path currently flagged dirty by the
// HMR controller (spec.md §4.H).
func dirtyModules(g *graph.Graph) []string {
	var out []string
	for _, m := range g.All() {
		if m.Hot.Dirty() {
			out = append(out, m.Path)
		}
	}
	return out
}

func dirtyInitiatorFirstOrder(b *Bundler, dirty []string) []string {
	return linker.DirtyInitiatorFirstOrder(b.graph, dirty)
}
