// Package config loads the bundler server's own operator-facing
// configuration: CDN endpoints and retry policy, logging, preset names,
// and the websocket listen address. It is HCL-based, following this corpus's
// hclparse+gohcl loading idiom, and is distinct from (and never
// replaces) the per-project files a compile request carries, which
// always arrive as JSON over the wire per spec.md §6.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Model is the parsed server configuration.
type Model struct {
	ListenAddr string `hcl:"listen_addr,optional"`
	LogLevel   string `hcl:"log_level,optional"`
	LogFormat  string `hcl:"log_format,optional"`

	Registry RegistryBlock `hcl:"registry,block"`

	Presets []PresetBlock `hcl:"preset,block"`
}

// RegistryBlock configures the CDN package registry (internal/pkgregistry).
type RegistryBlock struct {
	ManifestURL        string   `hcl:"manifest_url"`
	PackageURLs        []string `hcl:"package_urls"`
	RetryMaxAttempts   int      `hcl:"retry_max_attempts,optional"`
	RetryInitialWaitMs int      `hcl:"retry_initial_wait_ms,optional"`
	RetryMaxWaitMs     int      `hcl:"retry_max_wait_ms,optional"`
}

// PresetBlock names a preset beyond the built-in "vanilla" one (e.g.
// "react", "vue"). Load collects the names into Model.Presets; bundlerd
// does not pass them on to the orchestrator, so they register nothing.
type PresetBlock struct {
	Name string `hcl:"name,label"`
}

// fileRoot mirrors Model's shape for top-level HCL block decoding,
// matching this corpus's fileRoot pattern for discovering every
// top-level block in a config file.
type fileRoot struct {
	ListenAddr string         `hcl:"listen_addr,optional"`
	LogLevel   string         `hcl:"log_level,optional"`
	LogFormat  string         `hcl:"log_format,optional"`
	Registry   *RegistryBlock `hcl:"registry,block"`
	Presets    []PresetBlock  `hcl:"preset,block"`
}

// Defaults returns a Model populated with sane defaults for every field
// an operator's config file is allowed to omit.
func Defaults() *Model {
	return &Model{
		ListenAddr: ":8787",
		LogLevel:   "info",
		LogFormat:  "text",
		Registry: RegistryBlock{
			RetryMaxAttempts:   4,
			RetryInitialWaitMs: 200,
			RetryMaxWaitMs:     5000,
		},
	}
}

// Load parses path (an HCL file) into a Model, starting from Defaults()
// so any field the file omits keeps its default.
func Load(path string) (*Model, error) {
	model := Defaults()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return model, nil
		}
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing config %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding config %s: %w", path, diags)
	}

	if root.ListenAddr != "" {
		model.ListenAddr = root.ListenAddr
	}
	if root.LogLevel != "" {
		model.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		model.LogFormat = root.LogFormat
	}
	if root.Registry != nil {
		mergeRegistry(&model.Registry, root.Registry)
	}
	model.Presets = root.Presets

	return model, nil
}

func mergeRegistry(dst *RegistryBlock, src *RegistryBlock) {
	if src.ManifestURL != "" {
		dst.ManifestURL = src.ManifestURL
	}
	if len(src.PackageURLs) > 0 {
		dst.PackageURLs = src.PackageURLs
	}
	if src.RetryMaxAttempts > 0 {
		dst.RetryMaxAttempts = src.RetryMaxAttempts
	}
	if src.RetryInitialWaitMs > 0 {
		dst.RetryInitialWaitMs = src.RetryInitialWaitMs
	}
	if src.RetryMaxWaitMs > 0 {
		dst.RetryMaxWaitMs = src.RetryMaxWaitMs
	}
}
