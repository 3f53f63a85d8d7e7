// Package preset implements the preset and transformer registry described
// in spec.md §4.F: presets select an ordered transform chain per file and
// declare default entry candidates and framework dependency augmentation.
//
// The registration pattern (pluggable units added through
// RegisterTransformer/RegisterPreset calls, with RegisterBuiltins adding
// the built-in transformers, collected in a Registry that other
// components query by name) is carried over from this corpus's handler-registration
// idiom, generalized from runner/asset handlers to transformers.
package preset

import (
	"fmt"
	"regexp"

	"github.com/vk/webbundler/internal/bundlerr"
)

// TransformInput is what a transformer receives: the module's current
// code, identified by path for diagnostics/sourceURL purposes only
// (transformers are otherwise pure functions of (code, config)).
type TransformInput struct {
	Path string
	Code []byte
}

// TransformResult is what a transformer returns on success.
type TransformResult struct {
	Code         []byte
	Dependencies []string
}

// Transformer is the capability contract every transformer implements.
// Per spec.md §4.F, transformers are purely functional on (code, config);
// config is an opaque, transformer-specific value supplied by the preset.
type Transformer func(in TransformInput, config any) (TransformResult, error)

// Registry holds every transformer registered by name, plus the presets
// built from them.
type Registry struct {
	transformers map[string]Transformer
	presets      map[string]*Preset
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transformers: make(map[string]Transformer),
		presets:      make(map[string]*Preset),
	}
}

// RegisterTransformer adds a transformer under name. Re-registration under
// the same name overwrites the previous entry, matching this corpus's
// handler-registry idiom (last registration wins, intended for tests that
// substitute fakes).
func (r *Registry) RegisterTransformer(name string, t Transformer) {
	r.transformers = cloneIfNil(r.transformers)
	r.transformers[name] = t
}

func cloneIfNil(m map[string]Transformer) map[string]Transformer {
	if m == nil {
		return make(map[string]Transformer)
	}
	return m
}

// Transformer returns the transformer registered under name.
func (r *Registry) Transformer(name string) (Transformer, bool) {
	t, ok := r.transformers[name]
	return t, ok
}

// RegisterPreset adds a fully constructed preset under its own Name.
func (r *Registry) RegisterPreset(p *Preset) {
	r.presets[p.Name] = p
}

// Preset returns the preset registered under name.
func (r *Registry) Preset(name string) (*Preset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// TransformRule maps a file-extension predicate to an ordered chain of
// (transformer name, config) pairs, per spec.md §4.F "mapTransformers".
type TransformRule struct {
	Extensions []string
	Chain      []ChainStep
}

// ChainStep names one transformer and the config to invoke it with.
type ChainStep struct {
	Transformer string
	Config      any
}

// Preset bundles default entry candidates, a default HTML body, the
// extension -> chain rules, and the dependency-augmentation function
// described in spec.md §4.F.
type Preset struct {
	Name             string
	EntryCandidates  []string
	DefaultHTML      string
	Rules            []TransformRule
	AugmentDependencies func(deps map[string]string) map[string]string
}

// MapTransformers returns the ordered (name, config) chain for path,
// matching it by extension. An empty chain with a non-nil error means no
// rule matched (spec.md §4.F: "If no rule matches, compilation fails with
// a descriptive error").
func (p *Preset) MapTransformers(path string) ([]ChainStep, error) {
	for _, rule := range p.Rules {
		for _, ext := range rule.Extensions {
			if hasExt(path, ext) {
				return rule.Chain, nil
			}
		}
	}
	return nil, fmt.Errorf("no transform rule matches %s", path)
}

func hasExt(path, ext string) bool {
	if len(path) < len(ext) {
		return false
	}
	return path[len(path)-len(ext):] == ext
}

// Run applies this registry's named transformer chain to in, feeding each
// transformer's output as the next one's input and unioning their
// discovered dependencies, per spec.md §4.D "compile runs the chain
// sequentially ... union of all transformers' discovered dependencies
// becomes the module's dependency set."
func (r *Registry) Run(p *Preset, in TransformInput) (TransformResult, error) {
	chain, err := p.MapTransformers(in.Path)
	if err != nil {
		return TransformResult{}, err
	}

	code := in.Code
	var deps []string
	for _, step := range chain {
		t, ok := r.Transformer(step.Transformer)
		if !ok {
			return TransformResult{}, fmt.Errorf("transformer %q not registered", step.Transformer)
		}
		result, err := t(TransformInput{Path: in.Path, Code: code}, step.Config)
		if err != nil {
			return TransformResult{}, &bundlerr.TransformError{Path: in.Path, Err: err}
		}
		code = result.Code
		deps = append(deps, result.Dependencies...)
	}
	return TransformResult{Code: code, Dependencies: deps}, nil
}

// importSpecifierPattern recognizes CommonJS require() calls and ES
// import/export ... from "..." specifiers, used by the default identity-js
// transformer (see builtin.go) to perform a best-effort static dependency
// scan in lieu of a real parser (concrete transformers are external
// collaborators per spec.md §1; this one exists only so the engine is
// exercisable end to end).
var importSpecifierPattern = regexp.MustCompile(`(?:require\(\s*["']([^"']+)["']\s*\)|(?:import|export)(?:[^'"]*?)from\s*["']([^"']+)["']|import\s*["']([^"']+)["'])`)

func scanSpecifiers(code []byte) []string {
	matches := importSpecifierPattern.FindAllSubmatch(code, -1)
	var out []string
	seen := make(map[string]struct{})
	for _, m := range matches {
		for _, g := range m[1:] {
			if len(g) == 0 {
				continue
			}
			spec := string(g)
			if _, ok := seen[spec]; ok {
				continue
			}
			seen[spec] = struct{}{}
			out = append(out, spec)
		}
	}
	return out
}
