package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/offline-shell/internal/testutil"
	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/strategy"
	"github.com/Sternrassler/offline-shell/pkg/worker"
)

func testServer(upstream string) config.Server {
	return config.Server{
		Port:            8080,
		Upstream:        upstream,
		Storage:         config.StorageMemory,
		Notifier:        config.NotifierLog,
		Clients:         config.StorageMemory,
		FetchTimeout:    5 * time.Second,
		InstallAttempts: 1,
		OfflineAfter:    1,
		ProbeInterval:   20 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
}

func newTestApp(t *testing.T) (*app, *testutil.MockOrigin) {
	t.Helper()
	origin := testutil.NewShellOrigin()
	t.Cleanup(origin.Close)

	a, err := newApp(context.Background(), testServer(origin.URL()), config.Default())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.close)
	return a, origin
}

func waitForState(t *testing.T, a *app, want worker.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for a.worker.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", a.worker.State(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "OK") {
		t.Errorf("Expected body to start with 'OK', got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "state: parsed") {
		t.Errorf("Expected lifecycle state in body, got %q", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newTestApp(t)
	router := a.router()

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/_worker/state", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "offline_shell_online") {
		t.Error("Expected offline_shell_online in metrics output")
	}
}

func TestStartInstallsAndIntercepts(t *testing.T) {
	a, origin := newTestApp(t)
	router := a.router()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.start(ctx)
	waitForState(t, a, worker.StateActivated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get(strategy.FallbackHeader) != "" {
		t.Errorf("online navigation = %d, fallback %q", rec.Code, rec.Header().Get(strategy.FallbackHeader))
	}

	origin.SetDown(true)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get(strategy.FallbackHeader) != string(strategy.SourceCache) {
		t.Errorf("offline navigation = %d, fallback %q", rec.Code, rec.Header().Get(strategy.FallbackHeader))
	}
	if a.monitor.Online() {
		t.Fatal("monitor should be offline")
	}

	// the probe restores connectivity once the upstream answers again
	origin.SetDown(false)
	deadline := time.Now().Add(5 * time.Second)
	for !a.monitor.Online() {
		if time.Now().After(deadline) {
			t.Fatal("probe did not restore connectivity")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartInstallFailure(t *testing.T) {
	a, origin := newTestApp(t)
	origin.SetResponse("/manifest.json", testutil.NewServerErrorResponse())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.start(ctx)
	waitForState(t, a, worker.StateRedundant)

	// an uncontrolled request is proxied untouched
	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get(strategy.FallbackHeader) != "" {
		t.Errorf("passthrough = %d, fallback %q", rec.Code, rec.Header().Get(strategy.FallbackHeader))
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		srv  config.Server
	}{
		{name: "memory", srv: config.Server{Storage: config.StorageMemory}},
		{name: "sqlite", srv: config.Server{Storage: config.StorageSQLite, SQLitePath: filepath.Join(dir, "cache.db")}},
		{name: "leveldb", srv: config.Server{Storage: config.StorageLevelDB, LevelDBPath: filepath.Join(dir, "leveldb")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := openBackend(tt.srv, nil)
			if err != nil {
				t.Fatalf("openBackend() error = %v", err)
			}
			defer b.Close()

			ctx := context.Background()
			if err := b.CreateStore(ctx, "shell-v1"); err != nil {
				t.Fatalf("CreateStore() error = %v", err)
			}
			if ok, _ := b.HasStore(ctx, "shell-v1"); !ok {
				t.Error("HasStore() = false after CreateStore")
			}
		})
	}
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	srv := testServer("http://localhost:3000")
	srv.Storage = config.StorageRedis
	srv.RedisURL = "127.0.0.1:1"

	if _, err := newApp(context.Background(), srv, config.Default()); err == nil {
		t.Error("newApp() expected error when Redis is unreachable")
	}
}
