package drain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/offline-shell/internal/testutil"
	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/network"
	"github.com/Sternrassler/offline-shell/pkg/storage"
)

const appOrigin = "http://app.test"

type fixture struct {
	origin  *testutil.MockOrigin
	backend storage.Backend
	manager *cache.Manager
	drainer *Drainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	origin := testutil.NewMockOrigin()
	t.Cleanup(origin.Close)

	ncfg := network.DefaultConfig()
	ncfg.AppOrigin = appOrigin
	ncfg.Upstream = origin.URL()
	client, err := network.New(ncfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.AppOrigin = appOrigin
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	backend := storage.NewMemoryBackend()
	manager := cache.NewManager(backend, config.Generation{
		ShellName:   "shell",
		RuntimeName: "runtime",
		QueueName:   "queue",
		VersionTag:  "v1",
	})
	d, err := New(manager, client, cfg)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	return &fixture{origin: origin, backend: backend, manager: manager, drainer: d}
}

func (f *fixture) enqueueReports(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.drainer.Enqueue(context.Background(), KindReports, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
}

func (f *fixture) pendingNumbers(t *testing.T) []int {
	t.Helper()
	ctx := context.Background()
	keys, err := f.drainer.Pending(ctx, KindReports)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	q, _ := f.manager.Queue(ctx)
	var out []int
	for _, k := range keys {
		entry, err := q.Match(ctx, k)
		if err != nil {
			t.Fatalf("Match() error = %v", err)
		}
		var v struct{ N int }
		json.Unmarshal(entry.Body, &v)
		out = append(out, v.N)
	}
	return out
}

// failOn answers 500 for the report whose n equals bad, 201 otherwise.
func failOn(bad int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var v struct{ N int }
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.N == bad {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func TestNew_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic without manager")
		}
	}()
	New(nil, nil, config.Default())
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    string
		body    string
		wantErr error
	}{
		{name: "bad kind", kind: "../x", body: `{}`, wantErr: ErrInvalidKind},
		{name: "empty kind", kind: "", body: `{}`, wantErr: ErrInvalidKind},
		{name: "not json", kind: KindReports, body: `{`, wantErr: ErrInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.drainer.Enqueue(ctx, tt.kind, []byte(tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnqueue_KeysKeepOrder(t *testing.T) {
	f := newFixture(t)
	f.enqueueReports(t, 12)

	got := f.pendingNumbers(t)
	if len(got) != 12 {
		t.Fatalf("pending = %v", got)
	}
	for i, n := range got {
		if n != i {
			t.Errorf("pending[%d] = %d, want %d", i, n, i)
		}
	}

	ok, _ := f.backend.HasStore(context.Background(), "queue")
	if !ok {
		t.Error("queue store was not created")
	}
}

func TestDrain_AllSucceed(t *testing.T) {
	f := newFixture(t)
	f.origin.SetHandler("/api/reports", failOn(-1))
	f.enqueueReports(t, 3)

	sent, err := f.drainer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sent != 3 {
		t.Errorf("Drain() sent = %d, want 3", sent)
	}
	if got := f.pendingNumbers(t); len(got) != 0 {
		t.Errorf("pending after drain = %v", got)
	}

	reqs := f.origin.RequestsTo("/api/reports")
	if len(reqs) != 3 {
		t.Fatalf("posted %d reports, want 3", len(reqs))
	}
	for i, r := range reqs {
		if r.Method != http.MethodPost {
			t.Errorf("request %d method = %s", i, r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("request %d Content-Type = %q", i, ct)
		}
		if want := fmt.Sprintf(`{"n":%d}`, i); string(r.Body) != want {
			t.Errorf("request %d body = %s, want %s", i, r.Body, want)
		}
	}
}

func TestDrain_StopsAtFirstFailure(t *testing.T) {
	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("entry %d fails", k), func(t *testing.T) {
			f := newFixture(t)
			f.origin.SetHandler("/api/reports", failOn(k))
			f.enqueueReports(t, 4)

			sent, err := f.drainer.Drain(context.Background())
			var rerr *ReplayError
			if !errors.As(err, &rerr) {
				t.Fatalf("Drain() error = %v, want *ReplayError", err)
			}
			if sent != k {
				t.Errorf("Drain() sent = %d, want %d", sent, k)
			}

			got := f.pendingNumbers(t)
			if len(got) != 4-k {
				t.Fatalf("pending = %v, want %d entries", got, 4-k)
			}
			if got[0] != k {
				t.Errorf("first pending = %d, want %d", got[0], k)
			}
			// nothing after the failed entry was attempted
			if n := f.origin.Count("/api/reports"); n != k+1 {
				t.Errorf("posted %d reports, want %d", n, k+1)
			}
		})
	}
}

func TestDrain_RetriesOnNextSync(t *testing.T) {
	f := newFixture(t)
	f.origin.SetDown(true)
	f.enqueueReports(t, 2)
	ctx := context.Background()

	_, err := f.drainer.Drain(ctx)
	if !network.IsNetworkFailure(err) {
		t.Fatalf("Drain() error = %v, want network failure", err)
	}
	if got := f.pendingNumbers(t); len(got) != 2 {
		t.Fatalf("pending = %v", got)
	}

	f.origin.SetDown(false)
	f.origin.SetHandler("/api/reports", failOn(-1))
	if err := f.drainer.HandleSync(ctx, TagReports); err != nil {
		t.Fatalf("HandleSync() error = %v", err)
	}
	if got := f.pendingNumbers(t); len(got) != 0 {
		t.Errorf("pending = %v, want empty", got)
	}
}

func TestDrain_Empty(t *testing.T) {
	f := newFixture(t)
	sent, err := f.drainer.Drain(context.Background())
	if err != nil || sent != 0 {
		t.Errorf("Drain() = %d, %v; want 0, nil", sent, err)
	}
}

func TestDrain_SkipsOtherKinds(t *testing.T) {
	f := newFixture(t)
	f.origin.SetHandler("/api/reports", failOn(-1))
	ctx := context.Background()

	if _, err := f.drainer.Enqueue(ctx, KindLocation, []byte(`{"lat":1}`)); err != nil {
		t.Fatal(err)
	}
	f.enqueueReports(t, 1)

	sent, err := f.drainer.Drain(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("Drain() = %d, %v; want 1, nil", sent, err)
	}
	loc, _ := f.drainer.Pending(ctx, KindLocation)
	if len(loc) != 1 {
		t.Errorf("location entries = %d, want 1", len(loc))
	}
}

func TestDrain_DiscardsCorruptEntry(t *testing.T) {
	f := newFixture(t)
	f.origin.SetHandler("/api/reports", failOn(-1))
	ctx := context.Background()

	key, err := f.drainer.Enqueue(ctx, KindReports, []byte(`{"n":0}`))
	if err != nil {
		t.Fatal(err)
	}
	f.backend.Put(ctx, "queue", key.String(), []byte("garbage"))
	f.enqueueReports(t, 1)

	sent, err := f.drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sent != 1 {
		t.Errorf("Drain() sent = %d, want 1", sent)
	}
	if got := f.pendingNumbers(t); len(got) != 0 {
		t.Errorf("pending = %v", got)
	}
}

func TestHandleSync_OtherTags(t *testing.T) {
	f := newFixture(t)
	f.enqueueReports(t, 1)
	ctx := context.Background()

	for _, tag := range []string{TagLocation, "sync-unknown"} {
		if err := f.drainer.HandleSync(ctx, tag); err != nil {
			t.Errorf("HandleSync(%s) error = %v", tag, err)
		}
	}
	if n := f.origin.Count("/api/reports"); n != 0 {
		t.Errorf("posted %d reports, want 0", n)
	}
}

func TestEndpoint(t *testing.T) {
	f := newFixture(t)
	if got := f.drainer.Endpoint(); got != appOrigin+"/api/reports" {
		t.Errorf("Endpoint() = %q", got)
	}
}
