package preset

// IdentityJS is the default stand-in for a real JS/JSX/TS transpiler
// (Babel and friends are external collaborators per spec.md §1). It
// leaves the source untouched and discovers dependencies with a regexp
// scan rather than a real parser.
func IdentityJS(in TransformInput, _ any) (TransformResult, error) {
	return TransformResult{
		Code:         in.Code,
		Dependencies: scanSpecifiers(in.Code),
	}, nil
}

// IdentityAsset is the default stand-in for non-JS transformers (CSS,
// JSON, raw text). It performs no dependency discovery.
func IdentityAsset(in TransformInput, _ any) (TransformResult, error) {
	return TransformResult{Code: in.Code}, nil
}

// RegisterBuiltins registers the two default transformers under the names
// the vanilla preset's rules reference.
func RegisterBuiltins(r *Registry) {
	r.RegisterTransformer("identity-js", IdentityJS)
	r.RegisterTransformer("identity-asset", IdentityAsset)
}

// Vanilla is the default preset: plain JS/TS project, no framework.
// Template-specific presets (react, vue, svelte, ...) are expected to
// register their own transformers (babel-with-react, vue-sfc, ...) and
// build a Preset with the same shape; the engine does not special-case
// any template name beyond looking it up in the registry.
func Vanilla() *Preset {
	jsExts := []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}
	return &Preset{
		Name:            "vanilla",
		EntryCandidates: []string{"/index.js", "/index.ts", "/src/index.js"},
		DefaultHTML:     "<!DOCTYPE html>\n<html>\n<head></head>\n<body></body>\n</html>\n",
		Rules: []TransformRule{
			{Extensions: jsExts, Chain: []ChainStep{{Transformer: "identity-js"}}},
			{Extensions: []string{".css", ".json", ".txt"}, Chain: []ChainStep{{Transformer: "identity-asset"}}},
		},
		AugmentDependencies: func(deps map[string]string) map[string]string {
			return deps
		},
	}
}
