// Package bundlerr defines the error taxonomy shared by every compilation
// stage. Errors carry enough structured data (path, specifier, origin) for
// the orchestrator to translate them into the host message protocol's
// action{show-error} shape without string-sniffing; EntryPointUnresolved
// too is detected by type.
package bundlerr

import "fmt"

// ModuleNotFound is returned by the virtual file system on a read/exists
// miss, and by the resolver when no candidate path can be found.
type ModuleNotFound struct {
	// Path is the path or specifier that could not be found.
	Path string
	// Origin is the importing module's path, if known.
	Origin string
}

func (e *ModuleNotFound) Error() string {
	if e.Origin == "" {
		return fmt.Sprintf("module not found: %s", e.Path)
	}
	return fmt.Sprintf("module not found: %s (imported from %s)", e.Path, e.Origin)
}

// TransformError wraps an error raised by a transformer while compiling a
// module.
type TransformError struct {
	Path string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error in %s: %s", e.Path, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// EntryPointUnresolved means no candidate in package.json or the preset's
// defaults resolved to an existing file. The orchestrator detects this by
// type (not message text) and presents an empty-state UI instead of a
// generic error.
type EntryPointUnresolved struct {
	Candidates []string
}

func (e *EntryPointUnresolved) Error() string {
	return fmt.Sprintf("no entry point found among candidates: %v", e.Candidates)
}

// RegistryFetchError means the package registry exhausted every configured
// CDN (primary plus fallbacks) while fetching a package. A failed manifest
// fetch does not produce it; the registry synthesizes a manifest instead.
type RegistryFetchError struct {
	Name    string
	Version string
	Err     error
}

func (e *RegistryFetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s@%s from all registries: %s", e.Name, e.Version, e.Err)
}

func (e *RegistryFetchError) Unwrap() error { return e.Err }

// EvaluationError wraps a runtime exception raised while evaluating a
// compiled module.
type EvaluationError struct {
	Path  string
	Stack []string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("runtime exception in %s: %s", e.Path, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// PresetMissing means compilation was attempted before the preset was
// initialized for this bundler. This is a programmer error and is fatal.
type PresetMissing struct {
	Template string
}

func (e *PresetMissing) Error() string {
	return fmt.Sprintf("preset not initialized for template %q", e.Template)
}
