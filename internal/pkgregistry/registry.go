// Package pkgregistry implements the CDN package registry described in
// spec.md §4.C: resolving a dependency manifest, fetching packaged
// source with multi-source fallback, and exposing fetched files through
// the virtual file system's package layer.
//
// Fetch coalescing uses golang.org/x/sync/singleflight. Retry is
// hand-rolled on top of net/http and math/rand-based exponential backoff
// with jitter, in the same shape used
// elsewhere in this corpus for client-side retry logic — no third-party
// retry library is exercised anywhere in the example pool, so the
// stdlib-only approach here follows that precedent rather than inventing
// a new dependency for it.
package pkgregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/vk/webbundler/internal/bundlerr"
	"golang.org/x/sync/singleflight"
)

// ManifestEntry is one flattened dependency from fetchManifest: a
// (name, version, depth) triple, topologically ordered by depth per
// spec.md §4.C.
type ManifestEntry struct {
	Name    string
	Version string
	Depth   int
}

// PackageFile is one file within a fetched package.
type PackageFile struct {
	Content    []byte
	Deps       []string
	Transpiled bool
}

// HTTPDoer is satisfied by *http.Client; accepting the interface keeps
// tests free of real network calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Registry's CDN endpoints and retry policy.
type Config struct {
	// ManifestURL is the primary CDN endpoint that accepts a POST of the
	// dependency set and returns a flattened manifest.
	ManifestURL string
	// PackageURLs lists package-fetch endpoints in priority order; index 0
	// is the primary CDN, the rest are fallbacks (spec.md §4.C step 2).
	// Each must contain "%s" for the name@version identifier.
	PackageURLs []string
	Retry       RetryConfig
}

// Registry fetches and mounts third-party packages, coalescing concurrent
// fetches for the same (name, version) via singleflight (spec.md §4.C:
// "no concurrent fetch is started for the same (name, version)").
type Registry struct {
	cfg    Config
	client HTTPDoer

	group singleflight.Group

	mu      sync.RWMutex
	files   map[string]PackageFile // absolute /node_modules/... path -> file
	mounted map[string]struct{}    // name@version already mounted
}

// New constructs a Registry. client may be nil to use http.DefaultClient.
func New(cfg Config, client HTTPDoer) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{
		cfg:     cfg,
		client:  client,
		files:   make(map[string]PackageFile),
		mounted: make(map[string]struct{}),
	}
}

// FetchManifest posts the dependency set to the primary CDN and returns
// the transitive closure. On failure it synthesizes a trivial manifest of
// direct dependencies only, per spec.md §4.C step 1.
func (r *Registry) FetchManifest(ctx context.Context, deps map[string]string) ([]ManifestEntry, error) {
	body, err := json.Marshal(deps)
	if err != nil {
		return nil, err
	}

	var entries []ManifestEntry
	err = Do(ctx, r.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ManifestURL, strings.NewReader(string(body)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := r.client.Do(req)
		if err != nil {
			return Retryable(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return Retryable(fmt.Errorf("manifest fetch: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("manifest fetch: status %d", resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return Retryable(err)
		}
		var parsed []ManifestEntry
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return err
		}
		entries = parsed
		return nil
	})
	if err != nil {
		// Synthesize a trivial manifest of direct dependencies, stripped
		// of leading range operators, per spec.md §4.C step 1.
		synthesized := make([]ManifestEntry, 0, len(deps))
		for name, versionRange := range deps {
			synthesized = append(synthesized, ManifestEntry{
				Name:    name,
				Version: stripRangeOperators(versionRange),
				Depth:   0,
			})
		}
		return synthesized, nil
	}
	return entries, nil
}

func stripRangeOperators(versionRange string) string {
	return strings.TrimLeft(versionRange, "^~>=< ")
}

// PreloadModules fetches each manifest entry from the primary CDN,
// falling back through PackageURLs[1:] on failure, and mounts the result
// under /node_modules/<name>/..., per spec.md §4.C step 2.
func (r *Registry) PreloadModules(ctx context.Context, entries []ManifestEntry) error {
	for _, entry := range entries {
		if err := r.preloadOne(ctx, entry); err != nil {
			return &bundlerr.RegistryFetchError{Name: entry.Name, Version: entry.Version, Err: err}
		}
	}
	return nil
}

func (r *Registry) preloadOne(ctx context.Context, entry ManifestEntry) error {
	key := entry.Name + "@" + entry.Version

	r.mu.RLock()
	_, already := r.mounted[key]
	r.mu.RUnlock()
	if already {
		return nil
	}

	_, err, _ := r.group.Do(key, func() (any, error) {
		var lastErr error
		for i, tmpl := range r.cfg.PackageURLs {
			files, err := r.fetchFrom(ctx, tmpl, entry, i > 0)
			if err != nil {
				lastErr = err
				continue
			}
			r.mount(entry.Name, files)
			return nil, nil
		}
		return nil, lastErr
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.mounted[key] = struct{}{}
	r.mu.Unlock()
	return nil
}

// fetchFrom fetches one package from a single CDN template URL. Fallback
// CDNs return a single pre-transpiled index.js rather than a structured
// file map, per spec.md §4.C step 2.
func (r *Registry) fetchFrom(ctx context.Context, urlTemplate string, entry ManifestEntry, isFallback bool) (map[string]PackageFile, error) {
	url := fmt.Sprintf(urlTemplate, entry.Name+"@"+entry.Version)

	var result map[string]PackageFile
	err := Do(ctx, r.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return Retryable(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return Retryable(fmt.Errorf("package fetch %s: status %d", url, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("package fetch %s: status %d", url, resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return Retryable(err)
		}

		if isFallback {
			result = map[string]PackageFile{
				"index.js": {Content: raw, Transpiled: true},
			}
			return nil
		}

		var parsed map[string]struct {
			Content    string   `json:"content"`
			Deps       []string `json:"deps"`
			Transpiled bool     `json:"transpiled"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return err
		}
		result = make(map[string]PackageFile, len(parsed))
		for p, f := range parsed {
			result[p] = PackageFile{Content: []byte(f.Content), Deps: f.Deps, Transpiled: f.Transpiled}
		}
		return nil
	})
	return result, err
}

func (r *Registry) mount(name string, files map[string]PackageFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for relPath, f := range files {
		abs := path.Join("/node_modules", name, relPath)
		r.files[abs] = f
	}
}

// LookupSync implements vfs.PackageSource for files already mounted.
func (r *Registry) LookupSync(p string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[p]
	if !ok {
		return nil, false
	}
	return f.Content, true
}

// LookupAsync implements vfs.PackageSource. Packages are expected to have
// been mounted already by PreloadModules (spec.md §4.J step 7 runs this
// before any module transforms); a miss here is a genuine not-found.
func (r *Registry) LookupAsync(p string) ([]byte, bool, error) {
	content, ok := r.LookupSync(p)
	return content, ok, nil
}
