// Package resolver implements the (specifier, fromPath) -> absolutePath
// mapping described in spec.md §4.B: a simplified Node-style resolution
// algorithm over the layered virtual file system, with a cache valid for
// the lifetime of one compile.
//
// The control-flow shape (classify specifier, probe candidates in a fixed
// order, memoize every probe whether positive or negative) mirrors the
// filesystem/HTTP resolution in the mindscript module loader found
// elsewhere in this corpus: resolve relative to the importer's directory,
// fall through a list of extensions, and cache both hits and misses under
// the requesting pair.
package resolver

import (
	gopath "path"
	"strings"
	"sync"

	"github.com/vk/webbundler/internal/bundlerr"
	"github.com/vk/webbundler/internal/vfs"
)

// DefaultExtensions is the caller-supplied probe order used when Options
// does not override it (spec.md §4.B).
var DefaultExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// Options configures one resolve call. TemplateExtension is appended to
// DefaultExtensions when set (e.g. ".vue", ".svelte").
type Options struct {
	Extensions        []string
	TemplateExtension string
	// BrowserField is the parsed contents of the nearest package.json's
	// "browser" field (string remap or object map), applied per spec.md
	// §4.B step 4.
	BrowserField map[string]string
	// TSConfigPaths is the "paths" map from tsconfig.json/jsconfig.json at
	// the project root, applied per spec.md §4.B step 4.
	TSConfigPaths map[string][]string
}

func (o Options) extensions() []string {
	if len(o.Extensions) > 0 {
		return o.Extensions
	}
	exts := append([]string(nil), DefaultExtensions...)
	if o.TemplateExtension != "" {
		exts = append(exts, o.TemplateExtension)
	}
	return exts
}

type cacheKey struct {
	fromDir   string
	specifier string
}

// Resolver resolves specifiers against a virtual file system, memoizing
// every probe for the lifetime of one compile (spec.md §3 "Resolver
// cache").
type Resolver struct {
	fs *vfs.FS

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

type cacheEntry struct {
	path string
	err  error
}

// New constructs a resolver reading through fs.
func New(fs *vfs.FS) *Resolver {
	return &Resolver{fs: fs, cache: make(map[cacheKey]cacheEntry)}
}

// ResetCache drops every memoized probe. Called between compile requests,
// never within one (spec.md §5 "resolver cache immutable for the duration
// of the request").
func (r *Resolver) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]cacheEntry)
}

// Resolve maps (specifier, fromPath) to an absolute path, per spec.md
// §4.B. Both positive and negative results are memoized under
// (fromDir, specifier). A miss is returned as a ModuleNotFound whose
// Origin is fromPath.
func (r *Resolver) Resolve(specifier, fromPath string, opts Options) (string, error) {
	fromDir := gopath.Dir(vfs.Normalize(fromPath))
	key := cacheKey{fromDir: fromDir, specifier: specifier}

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()

	if !ok {
		entry.path, entry.err = r.resolveUncached(specifier, fromDir, opts)
		r.mu.Lock()
		r.cache[key] = entry
		r.mu.Unlock()
	}

	// The cache is keyed by directory, so the importing file is attached
	// to a miss here rather than stored with it.
	if nf, isNF := entry.err.(*bundlerr.ModuleNotFound); isNF && nf.Origin == "" {
		return "", &bundlerr.ModuleNotFound{Path: nf.Path, Origin: fromPath}
	}
	return entry.path, entry.err
}

func (r *Resolver) resolveUncached(specifier, fromDir string, opts Options) (string, error) {
	if target, ok := r.applyBrowserField(specifier, opts); ok {
		specifier = target
	}

	switch classify(specifier) {
	case kindRelative:
		target := gopath.Join(fromDir, specifier)
		return r.probeFileOrDir(target, opts)
	case kindAbsolute:
		return r.probeFileOrDir(specifier, opts)
	default:
		if target, ok := r.applyTSConfigPaths(specifier, opts); ok {
			return r.probeFileOrDir(target, opts)
		}
		return r.resolvePackage(specifier, fromDir, opts)
	}
}

type specifierKind int

const (
	kindRelative specifierKind = iota
	kindAbsolute
	kindPackage
)

func classify(specifier string) specifierKind {
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		return kindRelative
	case strings.HasPrefix(specifier, "/"):
		return kindAbsolute
	default:
		return kindPackage
	}
}

// applyBrowserField applies a string-form browser remap (module name ->
// replacement specifier), per spec.md §4.B step 4.
func (r *Resolver) applyBrowserField(specifier string, opts Options) (string, bool) {
	if opts.BrowserField == nil {
		return "", false
	}
	target, ok := opts.BrowserField[specifier]
	return target, ok
}

// applyTSConfigPaths expands a tsconfig "paths" entry into a project-root
// relative target, honoring the first configured path template.
func (r *Resolver) applyTSConfigPaths(specifier string, opts Options) (string, bool) {
	for pattern, targets := range opts.TSConfigPaths {
		prefix := strings.TrimSuffix(pattern, "*")
		if !strings.HasSuffix(pattern, "*") {
			if pattern == specifier && len(targets) > 0 {
				return "/" + strings.TrimPrefix(targets[0], "/"), true
			}
			continue
		}
		if strings.HasPrefix(specifier, prefix) && len(targets) > 0 {
			suffix := strings.TrimPrefix(specifier, prefix)
			target := strings.TrimSuffix(targets[0], "*") + suffix
			return "/" + strings.TrimPrefix(target, "/"), true
		}
	}
	return "", false
}

// probeFileOrDir implements spec.md §4.B step 2: exact path, then each
// extension appended, then <path>/index.<ext>, then <path>/package.json
// honoring main/module/browser.
func (r *Resolver) probeFileOrDir(target string, opts Options) (string, error) {
	target = vfs.Normalize(target)

	if r.fs.ExistsSync(target) {
		return target, nil
	}

	exts := opts.extensions()
	for _, ext := range exts {
		candidate := target + ext
		if r.fs.ExistsSync(candidate) {
			return candidate, nil
		}
	}

	for _, ext := range exts {
		candidate := gopath.Join(target, "index"+ext)
		if r.fs.ExistsSync(candidate) {
			return candidate, nil
		}
	}

	pkgJSON := gopath.Join(target, "package.json")
	if r.fs.ExistsSync(pkgJSON) {
		if main, ok := r.mainFromPackageJSON(pkgJSON); ok {
			return r.probeFileOrDir(gopath.Join(target, main), opts)
		}
	}

	return "", &bundlerr.ModuleNotFound{Path: target}
}

// resolvePackage implements spec.md §4.B step 3: walk fromDir upward
// looking for node_modules/pkg, applying exports conditions when present.
func (r *Resolver) resolvePackage(specifier string, fromDir string, opts Options) (string, error) {
	name, sub := splitPackageSpecifier(specifier)

	dir := fromDir
	for {
		candidateRoot := gopath.Join(dir, "node_modules", name)
		pkgJSON := gopath.Join(candidateRoot, "package.json")
		if r.fs.ExistsSync(pkgJSON) {
			if target, ok := r.resolveExports(pkgJSON, sub); ok {
				resolved, err := r.probeFileOrDir(gopath.Join(candidateRoot, target), opts)
				if err == nil {
					return resolved, nil
				}
			}
			if sub != "" {
				return r.probeFileOrDir(gopath.Join(candidateRoot, sub), opts)
			}
			if main, ok := r.mainFromPackageJSON(pkgJSON); ok {
				return r.probeFileOrDir(gopath.Join(candidateRoot, main), opts)
			}
			return r.probeFileOrDir(candidateRoot, opts)
		}
		if dir == "/" {
			break
		}
		dir = gopath.Dir(dir)
	}

	return "", &bundlerr.ModuleNotFound{Path: specifier}
}

func splitPackageSpecifier(specifier string) (name, sub string) {
	parts := strings.SplitN(specifier, "/", 2)
	if strings.HasPrefix(specifier, "@") && len(parts) == 2 {
		// Scoped package: @scope/name[/sub...]
		scopedParts := strings.SplitN(parts[1], "/", 2)
		name = parts[0] + "/" + scopedParts[0]
		if len(scopedParts) == 2 {
			sub = scopedParts[1]
		}
		return name, sub
	}
	name = parts[0]
	if len(parts) == 2 {
		sub = parts[1]
	}
	return name, sub
}
