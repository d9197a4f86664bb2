package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/storyhive/storyhive/internal/api"
	"github.com/storyhive/storyhive/internal/netcache"
	"github.com/storyhive/storyhive/internal/storage"
	"github.com/storyhive/storyhive/internal/syncer"
)

type testGateway struct {
	gw       *Gateway
	store    *storage.Store
	monitor  *syncer.ManualMonitor
	upstream *httptest.Server
}

func setupTestGateway(t *testing.T, shell bool) *testGateway {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/stories"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"error":false,"message":"ok","listStory":[{"id":"s1"}]}`))
		default:
			w.Write([]byte("shell " + r.URL.Path))
		}
	}))
	t.Cleanup(upstream.Close)

	tmpDir, err := os.MkdirTemp("", "gateway-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cache, err := netcache.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })

	apiBase := upstream.URL + "/v1"
	shellBase := ""
	if shell {
		shellBase = upstream.URL
	}
	transport, err := netcache.NewTransport(cache, netcache.Config{
		APIBaseURL:   apiBase,
		ShellBaseURL: shellBase,
		Manifest:     netcache.NewManifest([]string{"/", "/styles/styles.css"}),
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewStore(filepath.Join(tmpDir, "fav.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	client, err := api.New(apiBase, nil)
	if err != nil {
		t.Fatal(err)
	}
	monitor := syncer.NewManualMonitor(true)
	coord := syncer.New(store, client, monitor)

	gw, err := New(Config{
		Addr:         "127.0.0.1:0",
		APIBaseURL:   apiBase,
		ShellBaseURL: shellBase,
	}, transport, coord, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return &testGateway{gw: gw, store: store, monitor: monitor, upstream: upstream}
}

func serve(t *testing.T, gw *Gateway, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	gw.echo.ServeHTTP(rec, req)
	return rec
}

func TestGateway_Healthz(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := serve(t, tg.gw, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "true") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestGateway_APIProxy(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := serve(t, tg.gw, http.MethodGet, "/v1/stories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		ListStory []struct {
			ID string `json:"id"`
		} `json:"listStory"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.ListStory) != 1 || out.ListStory[0].ID != "s1" {
		t.Errorf("unexpected proxied list: %+v", out.ListStory)
	}
}

func TestGateway_APIProxyServesCacheWhenOffline(t *testing.T) {
	tg := setupTestGateway(t, false)

	// Warm the cache, then lose the upstream.
	rec := serve(t, tg.gw, http.MethodGet, "/v1/stories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("warm-up failed: %d", rec.Code)
	}
	tg.upstream.Close()

	rec = serve(t, tg.gw, http.MethodGet, "/v1/stories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"s1"`) {
		t.Errorf("cached list lost: %q", rec.Body.String())
	}
}

func TestGateway_APIProxyForwardsAuthorization(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"error":false,"message":"ok","listStory":[]}`))
	}))
	defer upstream.Close()

	tmpDir := t.TempDir()
	cache, err := netcache.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	transport, err := netcache.NewTransport(cache, netcache.Config{
		APIBaseURL: upstream.URL + "/v1",
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	gw, err := New(Config{Addr: "127.0.0.1:0", APIBaseURL: upstream.URL + "/v1"}, transport, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	header := http.Header{"Authorization": []string{"Bearer tok-abc"}}
	rec := serve(t, gw, http.MethodGet, "/v1/stories", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("authorization header not forwarded, got %q", gotAuth)
	}
}

func TestGateway_ShellProxy(t *testing.T) {
	tg := setupTestGateway(t, true)

	rec := serve(t, tg.gw, http.MethodGet, "/styles/styles.css", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "shell /styles/styles.css" {
		t.Errorf("unexpected asset body %q", rec.Body.String())
	}

	// The asset is now cached: still served after the upstream is gone.
	tg.upstream.Close()
	rec = serve(t, tg.gw, http.MethodGet, "/styles/styles.css", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached 200, got %d", rec.Code)
	}
	if rec.Body.String() != "shell /styles/styles.css" {
		t.Errorf("cached asset differs: %q", rec.Body.String())
	}
}

func TestGateway_SyncStatus(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := serve(t, tg.gw, http.MethodGet, "/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status syncer.SyncStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Online {
		t.Error("expected online status")
	}
	if status.PendingSyncCount != 0 {
		t.Errorf("expected empty queue, got %d", status.PendingSyncCount)
	}
}

func TestGateway_SyncStatusWithoutCoordinator(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	cache, err := netcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	transport, err := netcache.NewTransport(cache, netcache.Config{
		APIBaseURL: upstream.URL + "/v1",
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	gw, err := New(Config{Addr: "127.0.0.1:0", APIBaseURL: upstream.URL + "/v1"}, transport, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(t, gw, http.MethodGet, "/sync/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a coordinator, got %d", rec.Code)
	}
}

func TestGateway_Metrics(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := serve(t, tg.gw, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected prometheus exposition output")
	}
}

func storyForm(t *testing.T, description string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if description != "" {
		if err := form.WriteField("description", description); err != nil {
			t.Fatal(err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, form.FormDataContentType()
}

func postStory(t *testing.T, gw *Gateway, description, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := storyForm(t, description)
	req := httptest.NewRequest(http.MethodPost, "/v1/stories", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	gw.echo.ServeHTTP(rec, req)
	return rec
}

func TestGateway_CreateStoryOnline(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := postStory(t, tg.gw, "sunrise over the bay", "tok-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("expected server acknowledgement, got %q", rec.Body.String())
	}

	pending, err := tg.store.ListPendingSync()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("direct send must not queue, found %d pending", len(pending))
	}
}

func TestGateway_CreateStoryOfflineQueues(t *testing.T) {
	tg := setupTestGateway(t, false)
	tg.monitor.SetOnline(false)

	rec := postStory(t, tg.gw, "queued while offline", "tok-off")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "back online") {
		t.Errorf("expected deferred acknowledgement, got %q", rec.Body.String())
	}

	pending, err := tg.store.ListPendingSync()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued record, got %d", len(pending))
	}
	record := pending[0]
	if !strings.HasPrefix(record.ID, "off_") {
		t.Errorf("unexpected queued id %q", record.ID)
	}
	if record.Token != "tok-off" {
		t.Errorf("credential not captured, got %q", record.Token)
	}
	if record.LocalData == nil || record.LocalData.Description != "queued while offline" {
		t.Errorf("payload not captured: %+v", record.LocalData)
	}
}

func TestGateway_CreateStoryRejectsEmptyDescription(t *testing.T) {
	tg := setupTestGateway(t, false)

	rec := postStory(t, tg.gw, "", "tok-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "description") {
		t.Errorf("unexpected error body %q", rec.Body.String())
	}
}

func TestNewReplayRegistrar_TriggersReplay(t *testing.T) {
	replayed := make(chan struct{}, 1)
	registrar := NewReplayRegistrar(context.Background(), zerolog.Nop(), 10*time.Millisecond, func(context.Context) error {
		replayed <- struct{}{}
		return nil
	})

	if err := registrar.RegisterReplay(syncer.SyncTag); err != nil {
		t.Fatal(err)
	}
	select {
	case <-replayed:
	case <-time.After(5 * time.Second):
		t.Fatal("replay never ran")
	}
}

func TestNewReplayRegistrar_CancelledContextSkipsReplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	replayed := make(chan struct{}, 1)
	registrar := NewReplayRegistrar(ctx, zerolog.Nop(), time.Hour, func(context.Context) error {
		replayed <- struct{}{}
		return nil
	})
	if err := registrar.RegisterReplay(syncer.SyncTag); err != nil {
		t.Fatal(err)
	}
	select {
	case <-replayed:
		t.Fatal("replay ran despite cancelled context")
	case <-time.After(100 * time.Millisecond):
	}
}
