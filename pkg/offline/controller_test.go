package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/internal/testutil"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

func namespaceURLs(t *testing.T, st store.Store, name string) []string {
	t.Helper()
	ns, err := st.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", name, err)
	}
	keys, err := ns.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys(%s) failed: %v", name, err)
	}
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		u, _ := url.Parse(k.URL)
		urls = append(urls, u.Path)
	}
	sort.Strings(urls)
	return urls
}

func TestInstall_PopulatesNamespaces(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	m := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, m)

	tests := []struct {
		name string
		want []string
	}{
		{m.Namespaces().Essential, []string{"/", "/index.html", "/manifest.json"}},
		{m.Namespaces().Static, []string{"/favicon.ico", "/icons/icon-192.png", "/icons/icon-512.png", "/icons/logo.svg"}},
		{m.Namespaces().Data, []string{"/data/meridians.json", "/data/points.json"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, namespaceURLs(t, st, tt.name)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestInstall_StaticFailureStillInstalls(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/icons/logo.svg", testutil.NewNotFoundResponse())

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	m := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, m)

	if ctrl.Active() != m {
		t.Error("manager with failed static asset is not active")
	}
	for _, p := range namespaceURLs(t, st, m.Namespaces().Static) {
		if p == "/icons/logo.svg" {
			t.Error("404 asset was cached")
		}
	}
	if got := len(namespaceURLs(t, st, m.Namespaces().Static)); got != 3 {
		t.Errorf("static entries = %d, want 3", got)
	}
}

func TestInstall_EssentialFailureFails(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/manifest.json", testutil.NewNotFoundResponse())

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	m := newTestManager(t, origin, st, "v1")

	err := ctrl.Register(context.Background(), m)
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("err = %v, want ErrInstallFailed", err)
	}
	if m.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", m.State())
	}
	if ctrl.Active() != nil {
		t.Error("failed manager became active")
	}
	if got := namespaceURLs(t, st, m.Namespaces().Essential); len(got) != 0 {
		t.Errorf("essential namespace holds %v after failed install", got)
	}
}

func TestInstall_EssentialNetworkFailureFails(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetOffline(true)

	m := newTestManager(t, origin, store.NewMemoryStore(), "v1")
	if err := m.OnInstall(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Errorf("err = %v, want ErrInstallFailed", err)
	}
}

func TestController_VersionUpgrade(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)

	v1 := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, v1)

	// an unrelated leftover namespace is removed too
	if _, err := st.Open(ctx, "meridian-runtime-v0"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	v2 := newTestManager(t, origin, st, "v2")
	registerActive(t, ctrl, v2)

	names, err := st.Names(ctx)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	want := v2.Namespaces().AllowList()
	sort.Strings(want)
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}

	if ctrl.Active() != v2 {
		t.Error("controller is not served by v2")
	}
	if v1.State() != StateRedundant {
		t.Errorf("v1 state = %s, want redundant", v1.State())
	}

	req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/data/points.json", nil)
	resp, err := ctrl.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	resp.Body.Close()
	if got := namespaceURLs(t, st, v2.Namespaces().Data); len(got) == 0 {
		t.Error("v2 data namespace empty after fetch")
	}
}

func TestController_FailedUpgradeKeepsActive(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	v1 := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, v1)

	origin.SetResponse("/index.html", testutil.NewServerErrorResponse())
	v2 := newTestManager(t, origin, st, "v2")
	if err := ctrl.Register(context.Background(), v2); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("err = %v, want ErrInstallFailed", err)
	}

	if ctrl.Active() != v1 {
		t.Error("failed upgrade replaced the active manager")
	}
	if v1.State() != StateActive {
		t.Errorf("v1 state = %s, want active", v1.State())
	}
	if got := namespaceURLs(t, st, v1.Namespaces().Essential); len(got) != 3 {
		t.Errorf("v1 essential entries = %d, want 3", len(got))
	}
}

func TestController_InFlightRequestAcrossUpgrade(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	origin.SetHandler("/icons/slow.png", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG-slow"))
	})

	ctx := context.Background()
	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	v1 := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, v1)

	done := make(chan error, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/icons/slow.png", nil)
		resp, err := ctrl.Fetch(req)
		if err != nil {
			done <- err
			return
		}
		defer resp.Body.Close()
		_, err = io.ReadAll(resp.Body)
		done <- err
	}()
	<-started

	v2 := newTestManager(t, origin, st, "v2")
	registerActive(t, ctrl, v2)

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight fetch failed: %v", err)
	}

	names, err := st.Names(ctx)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	want := v2.Namespaces().AllowList()
	sort.Strings(want)
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
	if v1.State() != StateRedundant {
		t.Errorf("v1 state = %s, want redundant", v1.State())
	}
}

func TestController_FailedActivationResumesWrites(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	v1 := newTestManager(t, origin, st, "v1")
	registerActive(t, ctrl, v1)

	// v2 never installed, so its activation is out of order
	v2 := newTestManager(t, origin, st, "v2")
	if err := ctrl.activate(context.Background(), v2); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	origin.SetResponse("/assets/app.css", testutil.NewOKResponse("text/css", "body{}"))
	req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/assets/app.css", nil)
	resp, err := ctrl.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	resp.Body.Close()

	if got := namespaceURLs(t, st, v1.Namespaces().Static); !slices.Contains(got, "/assets/app.css") {
		t.Errorf("v1 static namespace = %v, want /assets/app.css cached", got)
	}
}

func TestController_OriginWithPath(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	for path, resp := range testutil.DefaultSite() {
		origin.SetResponse(joinPath("/app", path), resp)
	}

	st := store.NewMemoryStore()
	ctrl := NewController(http.DefaultClient)
	m, err := New(DefaultConfig(st, newTestFetcher(t, origin), origin.URL()+"/app", "v1"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(m.Close)
	registerActive(t, ctrl, m)

	originURL, _ := url.Parse(origin.URL() + "/app")
	proxy := httptest.NewServer(ctrl.Handler(originURL))
	defer proxy.Close()

	origin.SetOffline(true)

	for _, path := range []string{"/", "/index.html", "/manifest.json", "/icons/logo.svg", "/data/points.json"} {
		resp, err := http.Get(proxy.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		if resp.Header.Get(cache.HeaderCacheStatus) != "hit" {
			t.Errorf("GET %s not served from cache", path)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, proxy.URL+"/quiz/lung", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("navigation failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != testutil.ShellHTML {
		t.Errorf("navigation = %d %q, want shell", resp.StatusCode, body)
	}
}

func TestController_ActivateWaiting(t *testing.T) {
	ctrl := NewController(http.DefaultClient)
	if err := ctrl.ActivateWaiting(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestController_FetchWithoutActiveManager(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	ctrl := NewController(newTestFetcher(t, origin))
	req, _ := http.NewRequest(http.MethodGet, origin.URL()+"/data/points.json", nil)
	resp, err := ctrl.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get(cache.HeaderCacheStatus) != "" {
		t.Error("response without manager came from a cache")
	}

	if err := ctrl.Sync(context.Background(), SyncTagProgress); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Sync err = %v, want ErrInvalidState", err)
	}
}

func TestController_Handler(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetHandler("/progress", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		w.Write(body)
	})

	ctrl := NewController(http.DefaultClient)
	m := newTestManager(t, origin, store.NewMemoryStore(), "v1")
	registerActive(t, ctrl, m)

	originURL, _ := url.Parse(origin.URL())
	proxy := httptest.NewServer(ctrl.Handler(originURL))
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/data/points.json")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != testutil.PointsJSON {
		t.Errorf("GET = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Post(proxy.URL+"/progress", "application/json", strings.NewReader(`{"card":"LI-4"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || string(body) != `{"card":"LI-4"}` {
		t.Errorf("POST = %d %q", resp.StatusCode, body)
	}

	origin.SetOffline(true)

	resp, err = http.Get(proxy.URL + "/icons/logo.svg")
	if err != nil {
		t.Fatalf("offline GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("offline cached status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(cache.HeaderCacheStatus) != "hit" {
		t.Error("offline response not served from cache")
	}

	resp, err = http.Get(proxy.URL + "/data/never-cached.json")
	if err != nil {
		t.Fatalf("offline GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("uncached offline status = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Post(proxy.URL+"/progress", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("offline POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("offline POST status = %d, want 502", resp.StatusCode)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "/data/points.json", "/data/points.json"},
		{"/", "/data/points.json", "/data/points.json"},
		{"/app", "/data/points.json", "/app/data/points.json"},
		{"/app/", "/data/points.json", "/app/data/points.json"},
		{"/app", "data", "/app/data"},
	}
	for _, tt := range tests {
		if got := joinPath(tt.a, tt.b); got != tt.want {
			t.Errorf("joinPath(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
