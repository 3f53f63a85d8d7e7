package pkgregistry_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/pkgregistry"
)

type fakeDoer struct {
	respond func(req *http.Request) (*http.Response, error)
	calls   int32
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.respond(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFetchManifest_ReturnsParsedEntriesOnSuccess(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `[{"Name":"lodash","Version":"4.17.21","Depth":0}]`), nil
	}}
	reg := pkgregistry.New(pkgregistry.Config{ManifestURL: "https://cdn.test/manifest"}, doer)

	entries, err := reg.FetchManifest(context.Background(), map[string]string{"lodash": "^4.17.0"})

	require.NoError(t, err)
	require.Equal(t, []pkgregistry.ManifestEntry{{Name: "lodash", Version: "4.17.21", Depth: 0}}, entries)
}

func TestFetchManifest_SynthesizesFallbackOnFailure(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(500, ""), nil
	}}
	reg := pkgregistry.New(pkgregistry.Config{
		ManifestURL: "https://cdn.test/manifest",
		Retry:       pkgregistry.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}, doer)

	entries, err := reg.FetchManifest(context.Background(), map[string]string{"lodash": "^4.17.0"})

	require.NoError(t, err)
	require.Equal(t, []pkgregistry.ManifestEntry{{Name: "lodash", Version: "4.17.0", Depth: 0}}, entries)
}

func TestPreloadModules_FallsBackToSecondCDNOnFirstFailure(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{respond: func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.String(), "primary") {
			return jsonResponse(500, ""), nil
		}
		return jsonResponse(200, `raw transpiled content`), nil
	}}
	reg := pkgregistry.New(pkgregistry.Config{
		PackageURLs: []string{"https://primary.test/%s", "https://fallback.test/%s"},
		Retry:       pkgregistry.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}, doer)

	err := reg.PreloadModules(context.Background(), []pkgregistry.ManifestEntry{{Name: "lodash", Version: "4.17.21"}})

	require.NoError(t, err)
	content, ok := reg.LookupSync("/node_modules/lodash/index.js")
	require.True(t, ok)
	require.Equal(t, "raw transpiled content", string(content))
}

func TestPreloadModules_AllSourcesFailingReturnsRegistryFetchError(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(500, ""), nil
	}}
	reg := pkgregistry.New(pkgregistry.Config{
		PackageURLs: []string{"https://primary.test/%s"},
		Retry:       pkgregistry.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}, doer)

	err := reg.PreloadModules(context.Background(), []pkgregistry.ManifestEntry{{Name: "lodash", Version: "4.17.21"}})

	require.Error(t, err)
	require.Contains(t, err.Error(), "lodash")
}

func TestPreloadModules_SkipsAlreadyMountedPackage(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"index.js":{"content":"raw"}}`), nil
	}}
	reg := pkgregistry.New(pkgregistry.Config{
		PackageURLs: []string{"https://primary.test/%s"},
	}, doer)

	entries := []pkgregistry.ManifestEntry{{Name: "lodash", Version: "4.17.21"}}
	require.NoError(t, reg.PreloadModules(context.Background(), entries))
	require.NoError(t, reg.PreloadModules(context.Background(), entries))

	require.Equal(t, int32(1), atomic.LoadInt32(&doer.calls))
}

func TestLookupAsync_MissIsNotFoundWithoutError(t *testing.T) {
	t.Parallel()

	reg := pkgregistry.New(pkgregistry.Config{}, &fakeDoer{})

	content, found, err := reg.LookupAsync("/node_modules/nope/index.js")

	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, content)
}
