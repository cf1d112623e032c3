package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/internal/testutil"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/offline"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}
	return redisClient, cleanup
}

func newTestServer(t *testing.T, origin *testutil.MockOrigin, st store.Store) *server {
	t.Helper()
	originURL, _ := url.Parse(origin.URL())

	netCfg := network.DefaultConfig("meridian-offline/test")
	netCfg.Transport = origin.Transport()
	fetcher, err := network.New(netCfg)
	if err != nil {
		t.Fatalf("network.New failed: %v", err)
	}

	cfg := &appConfig{
		Origin:              originURL,
		Version:             "v1",
		Prefix:              offline.DefaultNamespacePrefix,
		Store:               backendMemory,
		Bounds:              offline.DefaultBounds(),
		PrecacheConcurrency: 2,
	}
	return newServer(cfg, st, fetcher, logging.NewLogger("server-test"))
}

func do(t *testing.T, h http.Handler, method, target string) (*http.Response, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
}

func TestServer_ActivateAndServe(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	st := store.NewMemoryStore()
	srv := newTestServer(t, origin, st)
	h := srv.routes()

	if resp, _ := do(t, h, http.MethodGet, "/ready"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready before activation = %d, want 503", resp.StatusCode)
	}

	resp, body := do(t, h, http.MethodPost, "/_offline/activate")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate = %d %s", resp.StatusCode, body)
	}
	var got activateResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode activate response: %v", err)
	}
	if got.Version != "v1" || got.State != string(offline.StateActive) {
		t.Errorf("activate response = %+v", got)
	}
	srv.ctrl.Active().Wait()

	resp, body = do(t, h, http.MethodGet, "/ready")
	if resp.StatusCode != http.StatusOK || body != "READY v1" {
		t.Errorf("ready = %d %q", resp.StatusCode, body)
	}

	origin.SetOffline(true)
	resp, body = do(t, h, http.MethodGet, "/data/points.json")
	if resp.StatusCode != http.StatusOK || body != testutil.PointsJSON {
		t.Errorf("offline data = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get(cache.HeaderCacheStatus) != "hit" {
		t.Error("offline data not served from cache")
	}
	origin.SetOffline(false)

	resp, body = do(t, h, http.MethodPost, "/_offline/activate?version=v2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate v2 = %d %s", resp.StatusCode, body)
	}
	srv.ctrl.Active().Wait()

	names, _ := st.Names(context.Background())
	for _, name := range names {
		if !strings.HasSuffix(name, "-v2") {
			t.Errorf("namespace %s survived the upgrade", name)
		}
	}
	if _, body := do(t, h, http.MethodGet, "/ready"); body != "READY v2" {
		t.Errorf("ready after upgrade = %q", body)
	}
}

func TestServer_ActivateFailure(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/index.html", testutil.NewServerErrorResponse())

	srv := newTestServer(t, origin, store.NewMemoryStore())
	resp, _ := do(t, srv.routes(), http.MethodPost, "/_offline/activate")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if srv.ctrl.Active() != nil {
		t.Error("failed install became active")
	}

	resp, _ = do(t, srv.routes(), http.MethodPost, "/_offline/activate?version=bad%20tag")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid version status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_Sync(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	srv := newTestServer(t, origin, store.NewMemoryStore())
	h := srv.routes()

	if resp, _ := do(t, h, http.MethodPost, "/_offline/sync/progress-sync"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sync without active version = %d, want 503", resp.StatusCode)
	}

	if _, err := srv.install(context.Background(), "v1"); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	tests := []struct {
		tag  string
		want int
	}{
		{offline.SyncTagProgress, http.StatusAccepted},
		{"flashcards", http.StatusNotFound},
	}
	for _, tt := range tests {
		if resp, _ := do(t, h, http.MethodPost, "/_offline/sync/"+tt.tag); resp.StatusCode != tt.want {
			t.Errorf("sync %s = %d, want %d", tt.tag, resp.StatusCode, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	srv := newTestServer(t, origin, store.NewMemoryStore())
	if _, err := srv.install(context.Background(), "v1"); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	h := srv.routes()
	do(t, h, http.MethodGet, "/data/points.json")

	resp, body := do(t, h, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("output is not in Prometheus format")
	}
	for _, name := range []string{"offline_responses_total", "offline_fetch_requests_total", "offline_active_version"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestReadyEndpoint_Redis(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	st := store.NewRedisStore(redisClient, fmt.Sprintf("ready-%d", time.Now().UnixNano()))
	srv := newTestServer(t, origin, st)
	if _, err := srv.install(context.Background(), "v1"); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	h := srv.routes()

	t.Run("ready", func(t *testing.T) {
		resp, body := do(t, h, http.MethodGet, "/ready")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d (%s), want 200", resp.StatusCode, body)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient.Close()
		if resp, _ := do(t, h, http.MethodGet, "/ready"); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		set        map[string]any
		needOrigin bool
		wantErr    bool
	}{
		{"defaults without origin", nil, false, false},
		{"origin required", nil, true, true},
		{"relative origin", map[string]any{"origin": "/app"}, true, true},
		{"unknown backend", map[string]any{"store": "s3"}, false, true},
		{"bad bounds", map[string]any{"bounds.trim_to": 500}, false, true},
		{"bad log level", map[string]any{"log.level": "loud"}, false, true},
		{"zero retries", map[string]any{"fetch.retries": 0}, false, true},
		{"valid serve", map[string]any{"origin": "https://meridian.example", "store": "disk"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			for k, val := range tt.set {
				v.Set(k, val)
			}

			cfg, err := loadConfig(v, tt.needOrigin)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig failed: %v", err)
			}
			if cfg.Bounds != offline.DefaultBounds() {
				t.Errorf("bounds = %+v, want defaults", cfg.Bounds)
			}
			if cfg.FetchTimeout != 30*time.Second {
				t.Errorf("fetch timeout = %s, want 30s", cfg.FetchTimeout)
			}
		})
	}
}

func TestManagerConfig_Manifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonc")
	os.WriteFile(path, []byte(`{
		// shell only
		"essential": ["/"],
	}`), 0o644)

	origin, _ := url.Parse("https://meridian.example")
	cfg := &appConfig{Origin: origin, Prefix: "mm", Bounds: offline.DefaultBounds(), ManifestPath: path}

	mcfg, err := cfg.managerConfig(store.NewMemoryStore(), http.DefaultClient, "v9")
	if err != nil {
		t.Fatalf("managerConfig failed: %v", err)
	}
	if len(mcfg.Manifest.Essential) != 1 || len(mcfg.Manifest.Static) != 0 {
		t.Errorf("manifest = %+v", mcfg.Manifest)
	}
	if mcfg.Namespaces.Essential != "mm-essential-v9" {
		t.Errorf("essential namespace = %s", mcfg.Namespaces.Essential)
	}
}

func TestRunSweep(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ns, _ := st.Open(ctx, "meridian-data-v1")
	for i := 0; i < 120; i++ {
		u := fmt.Sprintf("https://meridian.example/data/%d.json", i)
		ns.Put(ctx, cache.Key{Method: http.MethodGet, URL: u}, &cache.Entry{Method: http.MethodGet, URL: u, StatusCode: http.StatusOK, CachedAt: time.Now()})
	}
	st.Open(ctx, "meridian-static-v1")

	var out bytes.Buffer
	if err := runSweep(ctx, st, offline.DefaultBounds(), nil, &out); err != nil {
		t.Fatalf("runSweep failed: %v", err)
	}

	want := "meridian-data-v1\t70 removed\nmeridian-static-v1\t0 removed\ntotal\t70 removed\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRootCmd_SweepDiskStore(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(configPath, []byte("store: disk\ndisk:\n  dir: "+dir+"\nlog:\n  level: warn\n"), 0o644)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"sweep", "--config", configPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.Contains(out.String(), "(no namespaces)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRootCmd_EnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MERIDIAN_STORE", "nosuch")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"sweep"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "nosuch") {
		t.Errorf("err = %v, want unknown backend from environment", err)
	}
}
