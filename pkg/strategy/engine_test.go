package strategy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/Sternrassler/offline-shell/internal/testutil"
	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/classify"
	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/network"
	"github.com/Sternrassler/offline-shell/pkg/storage"
)

const appOrigin = "http://app.test"

var testGeneration = config.Generation{
	ShellName:   "shell",
	RuntimeName: "runtime",
	QueueName:   "queue",
	VersionTag:  "v1",
}

type fixture struct {
	origin  *testutil.MockOrigin
	backend storage.Backend
	manager *cache.Manager
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	origin := testutil.NewShellOrigin()
	t.Cleanup(origin.Close)

	cfg := network.DefaultConfig()
	cfg.AppOrigin = appOrigin
	cfg.Upstream = origin.URL()
	client, err := network.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	backend := storage.NewMemoryBackend()
	manager := cache.NewManager(backend, testGeneration)
	engine := New(manager, client, []string{appOrigin + "/index.html", appOrigin + "/"})

	return &fixture{origin: origin, backend: backend, manager: manager, engine: engine}
}

func (f *fixture) do(t *testing.T, path, accept string, class classify.ResourceClass) *http.Response {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, appOrigin+path, nil)
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	req := classify.FromHTTP(r, r.URL)
	resp := f.engine.Handle(r, req, class)
	if resp == nil {
		t.Fatalf("Handle(%s) returned nil", path)
	}
	return resp
}

func (f *fixture) seed(t *testing.T, store, path, body string) {
	t.Helper()
	ctx := context.Background()
	s, err := f.manager.Open(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	key, _ := cache.NewRequestKey(http.MethodGet, appOrigin+path)
	err = s.Put(ctx, key, &cache.StoredResponse{
		Status: 200,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte(body),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) stored(t *testing.T, store, path string) *cache.StoredResponse {
	t.Helper()
	s, _ := f.manager.Open(context.Background(), store)
	key, _ := cache.NewRequestKey(http.MethodGet, appOrigin+path)
	entry, err := s.Match(context.Background(), key)
	if err != nil {
		return nil
	}
	return entry
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestNavigation_Online(t *testing.T) {
	f := newFixture(t)
	f.origin.SetResponse("/alerts", testutil.NewHTMLResponse("<p>alerts</p>"))

	resp := f.do(t, "/alerts", "text/html", classify.Navigation)
	if body := readBody(t, resp); body != "<p>alerts</p>" {
		t.Errorf("body = %q, want live page", body)
	}
	if resp.Header.Get(FallbackHeader) != "" {
		t.Error("live response marked as fallback")
	}

	entry := f.stored(t, testGeneration.ShellStore(), "/alerts")
	if entry == nil {
		t.Fatal("navigation response was not copied into the shell store")
	}
	if string(entry.Body) != "<p>alerts</p>" {
		t.Errorf("stored body = %q", entry.Body)
	}
}

func TestNavigation_ErrorStatusNotCached(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "/missing", "text/html", classify.Navigation)
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404 from upstream", resp.StatusCode)
	}
	if f.stored(t, testGeneration.ShellStore(), "/missing") != nil {
		t.Error("404 navigation was cached")
	}
}

func TestNavigation_Offline(t *testing.T) {
	tests := []struct {
		name       string
		seed       func(*testing.T, *fixture)
		wantStatus int
		wantBody   string
		wantSource Source
	}{
		{
			name: "exact match",
			seed: func(t *testing.T, f *fixture) {
				f.seed(t, testGeneration.ShellStore(), "/alerts", "cached alerts")
				f.seed(t, testGeneration.ShellStore(), "/index.html", "shell")
			},
			wantStatus: 200,
			wantBody:   "cached alerts",
			wantSource: SourceCache,
		},
		{
			name: "exact match in runtime store",
			seed: func(t *testing.T, f *fixture) {
				f.seed(t, testGeneration.RuntimeStore(), "/alerts", "runtime alerts")
			},
			wantStatus: 200,
			wantBody:   "runtime alerts",
			wantSource: SourceCache,
		},
		{
			name: "root document fallback",
			seed: func(t *testing.T, f *fixture) {
				f.seed(t, testGeneration.ShellStore(), "/", "root document")
			},
			wantStatus: 200,
			wantBody:   "root document",
			wantSource: SourceOfflinePage,
		},
		{
			name: "offline url preferred over root",
			seed: func(t *testing.T, f *fixture) {
				f.seed(t, testGeneration.ShellStore(), "/", "root document")
				f.seed(t, testGeneration.ShellStore(), "/index.html", "index document")
			},
			wantStatus: 200,
			wantBody:   "index document",
			wantSource: SourceOfflinePage,
		},
		{
			name:       "nothing stored",
			seed:       func(t *testing.T, f *fixture) {},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   OfflinePageHTML,
			wantSource: SourceSynthesized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.seed(t, f)
			f.origin.SetDown(true)

			resp := f.do(t, "/alerts", "text/html", classify.Navigation)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := readBody(t, resp); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if got := resp.Header.Get(FallbackHeader); got != string(tt.wantSource) {
				t.Errorf("%s = %q, want %q", FallbackHeader, got, tt.wantSource)
			}
		})
	}
}

func TestAPICall_Offline(t *testing.T) {
	f := newFixture(t)
	f.origin.SetDown(true)

	resp := f.do(t, "/api/alerts", "application/json", classify.APICall)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(readBody(t, resp)), &body); err != nil {
		t.Fatalf("offline body is not JSON: %v", err)
	}
	want := map[string]string{"error": "Offline", "message": "No internet connection"}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("body = %v, want %v", body, want)
	}
}

func TestAPICall_OnlineNotCached(t *testing.T) {
	f := newFixture(t)
	f.origin.SetResponse("/api/alerts", testutil.NewJSONResponse(200, `[{"id":1}]`))

	resp := f.do(t, "/api/alerts", "application/json", classify.APICall)
	if body := readBody(t, resp); body != `[{"id":1}]` {
		t.Errorf("body = %q, want verbatim upstream body", body)
	}

	for _, store := range []string{testGeneration.ShellStore(), testGeneration.RuntimeStore()} {
		if f.stored(t, store, "/api/alerts") != nil {
			t.Errorf("API response cached in %s", store)
		}
	}
}

func TestStaticAsset_CacheFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, testGeneration.ShellStore(), "/manifest.json", "cached manifest")

	resp := f.do(t, "/manifest.json", "", classify.StaticAsset)
	if body := readBody(t, resp); body != "cached manifest" {
		t.Errorf("body = %q, want cached copy", body)
	}
	if f.origin.Count("/manifest.json") != 0 {
		t.Error("network consulted on cache hit")
	}
}

func TestStaticAsset_MissStoresOnly200(t *testing.T) {
	f := newFixture(t)
	f.origin.SetResponse("/app.js", testutil.MockResponse{StatusCode: 200, Body: "console.log(1)"})
	f.origin.SetResponse("/partial.js", testutil.MockResponse{StatusCode: 203, Body: "x"})

	resp := f.do(t, "/app.js", "", classify.StaticAsset)
	if body := readBody(t, resp); body != "console.log(1)" {
		t.Errorf("body = %q", body)
	}
	if f.stored(t, testGeneration.RuntimeStore(), "/app.js") == nil {
		t.Error("200 asset was not stored in the runtime store")
	}

	readBody(t, f.do(t, "/partial.js", "", classify.StaticAsset))
	readBody(t, f.do(t, "/missing.js", "", classify.StaticAsset))
	for _, p := range []string{"/partial.js", "/missing.js"} {
		if f.stored(t, testGeneration.RuntimeStore(), p) != nil {
			t.Errorf("%s was cached", p)
		}
	}

	// second request is answered from the runtime store
	readBody(t, f.do(t, "/app.js", "", classify.StaticAsset))
	if f.origin.Count("/app.js") != 1 {
		t.Errorf("upstream saw %d requests for /app.js, want 1", f.origin.Count("/app.js"))
	}
}

func TestStaticAsset_Offline(t *testing.T) {
	f := newFixture(t)
	f.origin.SetDown(true)

	r := httptest.NewRequest(http.MethodGet, appOrigin+"/photo.png", nil)
	r.Header.Set("Sec-Fetch-Dest", "image")
	resp := f.engine.Handle(r, classify.FromHTTP(r, r.URL), classify.StaticAsset)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := readBody(t, resp); body != OfflineImageSVG {
		t.Errorf("body = %q, want placeholder SVG", body)
	}

	resp = f.do(t, "/app.css", "text/css", classify.StaticAsset)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("non-image StatusCode = %d, want 503", resp.StatusCode)
	}
	if body := readBody(t, resp); body != OfflineText {
		t.Errorf("non-image body = %q", body)
	}
}

func TestStaticAsset_RepeatedRequestsOverwrite(t *testing.T) {
	f := newFixture(t)
	f.origin.SetResponse("/font.woff2", testutil.MockResponse{StatusCode: 200, Body: "font"})

	for i := 0; i < 3; i++ {
		readBody(t, f.do(t, "/font.woff2", "", classify.StaticAsset))
	}

	keys, err := f.backend.Keys(context.Background(), testGeneration.RuntimeStore())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Errorf("runtime keys = %v, want exactly one", keys)
	}
}

func TestIgnored(t *testing.T) {
	f := newFixture(t)
	r := httptest.NewRequest(http.MethodPost, appOrigin+"/api/reports", nil)
	if resp := f.engine.Handle(r, classify.FromHTTP(r, r.URL), classify.Ignored); resp != nil {
		t.Errorf("Handle(Ignored) = %v, want nil", resp)
	}
	if f.origin.Count("/api/reports") != 0 {
		t.Error("ignored request reached the network through the engine")
	}
	stores, _ := f.backend.Stores(context.Background())
	if len(stores) != 0 {
		t.Errorf("ignored request touched stores: %v", stores)
	}
}
