package shim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/shim"
	"github.com/vk/webbundler/internal/vfs"
)

func TestIsBuiltinSpecifier_BareAndNodePrefixed(t *testing.T) {
	t.Parallel()

	name, ok := shim.IsBuiltinSpecifier("events")
	require.True(t, ok)
	require.Equal(t, "events", name)

	name, ok = shim.IsBuiltinSpecifier("node:path")
	require.True(t, ok)
	require.Equal(t, "path", name)
}

func TestIsBuiltinSpecifier_UnknownSpecifierRejected(t *testing.T) {
	t.Parallel()

	_, ok := shim.IsBuiltinSpecifier("lodash")

	require.False(t, ok)
}

func TestSeed_WritesEveryBuiltinAndItsPackageJSON(t *testing.T) {
	t.Parallel()

	fs := vfs.New()
	shim.Seed(fs)

	for _, name := range shim.Names {
		require.True(t, fs.ExistsSync(shim.Path(name)), "missing shim for %s", name)
		require.True(t, fs.ExistsSync("/node_modules/"+name+"/package.json"))
	}
}

func TestSeed_KnownShimsHaveRealSource(t *testing.T) {
	t.Parallel()

	fs := vfs.New()
	shim.Seed(fs)

	content, err := fs.ReadSync(shim.Path("events"))

	require.NoError(t, err)
	require.NotEqual(t, "module.exports = {};\n", string(content))
}

func TestSeed_UnimplementedShimsGetEmptyPlaceholder(t *testing.T) {
	t.Parallel()

	fs := vfs.New()
	shim.Seed(fs)

	content, err := fs.ReadSync(shim.Path("tls"))

	require.NoError(t, err)
	require.Equal(t, "module.exports = {};\n", string(content))
}
