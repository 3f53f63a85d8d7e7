package vfs

import "strings"

// PackageSource is implemented by the package registry (internal/pkgregistry).
// It answers synchronous lookups for any path already mounted under
// /node_modules/<name>/..., and asynchronous lookups that may need to
// fetch+mount the package first.
type PackageSource interface {
	LookupSync(path string) ([]byte, bool)
	LookupAsync(path string) ([]byte, bool, error)
}

// PackageLayer is a read-through wrapper over the package registry. Every
// path under /node_modules is answered by consulting the registry; paths
// outside that prefix are always a miss.
type PackageLayer struct {
	source PackageSource
}

const nodeModulesPrefix = "/node_modules/"

// NewPackageLayer wraps source as a VFS layer.
func NewPackageLayer(source PackageSource) *PackageLayer {
	return &PackageLayer{source: source}
}

func (p *PackageLayer) Name() string { return "node_modules" }

func (p *PackageLayer) ExistsSync(path string) bool {
	if !strings.HasPrefix(path, nodeModulesPrefix) {
		return false
	}
	_, ok := p.source.LookupSync(path)
	return ok
}

func (p *PackageLayer) ReadSync(path string) ([]byte, bool) {
	if !strings.HasPrefix(path, nodeModulesPrefix) {
		return nil, false
	}
	return p.source.LookupSync(path)
}

func (p *PackageLayer) ExistsAsync(path string) (bool, error) {
	if !strings.HasPrefix(path, nodeModulesPrefix) {
		return false, nil
	}
	_, found, err := p.source.LookupAsync(path)
	return found, err
}

func (p *PackageLayer) ReadAsync(path string) ([]byte, bool, error) {
	if !strings.HasPrefix(path, nodeModulesPrefix) {
		return nil, false, nil
	}
	return p.source.LookupAsync(path)
}
