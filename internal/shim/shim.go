// Package shim seeds the virtual file system with minimal browser-safe
// substitutes for host-environment standard modules, per spec.md §4.I.
package shim

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/vk/webbundler/internal/vfs"
)

// Names enumerates every built-in this package provides a shim for.
var Names = []string{
	"events", "stream", "util", "process", "buffer", "assert", "path",
	"os", "url", "querystring", "string_decoder", "timers",
	"fs", "net", "crypto", "child_process", "tls", "dns", "dgram", "cluster",
}

// sources holds a real, minimal implementation for the substitutes that
// have one, and an empty placeholder object for the ones that don't (the
// server-only built-ins a browser bundle can never actually need).
var sources = map[string]string{
	"events":         eventsShimSrc,
	"stream":         streamShimSrc,
	"util":           utilShimSrc,
	"process":        processShimSrc,
	"buffer":         bufferShimSrc,
	"assert":         assertShimSrc,
	"path":           pathShimSrc,
	"os":             osShimSrc,
	"url":            urlShimSrc,
	"querystring":    querystringShimSrc,
	"string_decoder": stringDecoderShimSrc,
	"timers":         timersShimSrc,
}

const emptyPlaceholderSrc = "module.exports = {};\n"

// Path returns the absolute path a built-in named name is mounted at,
// matching spec.md §6 "Built-in shim layout".
func Path(name string) string {
	return path.Join("/node_modules", name, "index.js")
}

// Seed writes every built-in's index.js and a skeletal package.json into
// fs's memory layer.
func Seed(fs *vfs.FS) {
	for _, name := range Names {
		src, ok := sources[name]
		if !ok {
			src = emptyPlaceholderSrc
		}
		fs.WriteSync(Path(name), []byte(src))

		pkgJSON, _ := json.Marshal(map[string]string{
			"name":    name,
			"version": "0.0.0",
			"main":    "index.js",
		})
		fs.WriteSync(path.Join("/node_modules", name, "package.json"), pkgJSON)
	}
}

// IsBuiltinSpecifier reports whether specifier names a built-in, either
// bare ("stream") or with the "node:" prefix ("node:stream"), and returns
// its canonical name.
func IsBuiltinSpecifier(specifier string) (name string, ok bool) {
	trimmed := strings.TrimPrefix(specifier, "node:")
	for _, n := range Names {
		if n == trimmed {
			return n, true
		}
	}
	return "", false
}
