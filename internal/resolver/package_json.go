package resolver

import (
	"encoding/json"
)

// packageJSON is the subset of package.json fields the resolver consults,
// per spec.md §4.B steps 2–4.
type packageJSON struct {
	Main    string          `json:"main"`
	Module  string          `json:"module"`
	Browser json.RawMessage `json:"browser"`
	Exports json.RawMessage `json:"exports"`
}

// mainFromPackageJSON returns the entry point honoring browser > module >
// main, per spec.md §4.B: "Honor browser field mappings ... browser field
// overrides main when both apply".
func (r *Resolver) mainFromPackageJSON(path string) (string, bool) {
	content, err := r.fs.ReadSync(path)
	if err != nil {
		return "", false
	}
	var pj packageJSON
	if err := json.Unmarshal(content, &pj); err != nil {
		return "", false
	}
	if pj.Browser != nil {
		var s string
		if json.Unmarshal(pj.Browser, &s) == nil && s != "" {
			return s, true
		}
	}
	if pj.Module != "" {
		return pj.Module, true
	}
	if pj.Main != "" {
		return pj.Main, true
	}
	return "", false
}

// resolveExports applies the package.json "exports" map for a subpath,
// honoring the browser/import/default conditions in that priority order
// and picking the longest matching prefix key, per spec.md §4.B step 3.
func (r *Resolver) resolveExports(path string, sub string) (string, bool) {
	content, err := r.fs.ReadSync(path)
	if err != nil {
		return "", false
	}
	var pj packageJSON
	if err := json.Unmarshal(content, &pj); err != nil || pj.Exports == nil {
		return "", false
	}

	// The exports map may be a flat string (single entry point), a
	// condition map ({"browser": "...", "import": "...", ...}), or a
	// subpath map ({".": "...", "./foo": "..."}). Try each shape in turn.
	var flat string
	if json.Unmarshal(pj.Exports, &flat) == nil {
		if sub == "" {
			return flat, true
		}
		return "", false
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(pj.Exports, &generic); err != nil {
		return "", false
	}

	key := "."
	if sub != "" {
		key = "./" + sub
	}

	if raw, ok := bestSubpathMatch(generic, key, sub); ok {
		return resolveConditions(raw)
	}

	// Not a subpath map: treat the whole object as a condition map for ".".
	if key == "." {
		return resolveConditions(pj.Exports)
	}

	return "", false
}

// bestSubpathMatch finds the longest-prefix key in a subpath exports map,
// per spec.md §4.B: "exports subpaths longest-prefix wins".
func bestSubpathMatch(m map[string]json.RawMessage, exactKey, sub string) (json.RawMessage, bool) {
	if raw, ok := m[exactKey]; ok {
		return raw, true
	}
	var bestKey string
	var bestRaw json.RawMessage
	for k, raw := range m {
		if k == "." || !hasSubpathWildcardPrefix(k) {
			continue
		}
		prefix := k[:len(k)-1]
		if len(prefix) > len(bestKey) && hasPrefixPath("./"+sub, prefix) {
			bestKey = prefix
			bestRaw = raw
		}
	}
	if bestRaw != nil {
		return bestRaw, true
	}
	return nil, false
}

func hasSubpathWildcardPrefix(key string) bool {
	return len(key) > 0 && key[len(key)-1] == '*'
}

func hasPrefixPath(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func resolveConditions(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, s != ""
	}
	var conditions map[string]json.RawMessage
	if json.Unmarshal(raw, &conditions) != nil {
		return "", false
	}
	for _, cond := range []string{"browser", "import", "default"} {
		if v, ok := conditions[cond]; ok {
			if s, ok := resolveConditions(v); ok {
				return s, true
			}
		}
	}
	return "", false
}
