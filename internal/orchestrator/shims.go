package orchestrator

import (
	"fmt"

	"github.com/vk/webbundler/internal/shim"
)

// MaterializeShim implements linker.ShimMaterializer: it schedules and
// waits for the named built-in's shim source (already seeded into the
// memory FS at construction) to compile, then returns its module path so
// require() can evaluate it on demand, per spec.md §4.G's require(spec)
// built-in fallback.
func (b *Bundler) MaterializeShim(name string) (string, error) {
	path := shim.Path(name)
	b.sched.TransformModule(path)
	if err := b.sched.ModuleFinished(path); err != nil {
		return "", fmt.Errorf("materializing shim %q: %w", name, err)
	}
	b.linker.RegisterRuntimeModule(path)
	return path, nil
}
