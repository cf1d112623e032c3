package offline

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

func fillNamespace(t *testing.T, st store.Store, name string, n int, cachedAt func(i int) time.Time) {
	t.Helper()
	ctx := context.Background()
	ns, err := st.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://meridian.example/data/card-%03d.json", i)
		err := ns.Put(ctx, cache.Key{Method: http.MethodGet, URL: u}, &cache.Entry{
			Method:     http.MethodGet,
			URL:        u,
			StatusCode: http.StatusOK,
			Body:       []byte(fmt.Sprintf(`{"card":%d}`, i)),
			CachedAt:   cachedAt(i),
		})
		if err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}
}

func now(int) time.Time { return time.Now() }

func TestSweepNamespace_TrimsToMostRecent(t *testing.T) {
	tests := []struct {
		name        string
		entries     int
		wantRemoved int
		wantFirst   string
	}{
		{"at bound", 100, 0, "card-000"},
		{"one over bound", 101, 51, "card-051"},
		{"far over bound", 250, 200, "card-200"},
		{"empty", 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore()
			fillNamespace(t, st, "meridian-data-v1", tt.entries, now)

			removed, err := SweepNamespace(ctx, st, "meridian-data-v1", DefaultBounds())
			if err != nil {
				t.Fatalf("SweepNamespace failed: %v", err)
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %d, want %d", removed, tt.wantRemoved)
			}

			ns, _ := st.Open(ctx, "meridian-data-v1")
			keys, _ := ns.Keys(ctx)
			if want := tt.entries - tt.wantRemoved; len(keys) != want {
				t.Fatalf("remaining = %d, want %d", len(keys), want)
			}
			if len(keys) > 0 {
				want := "https://meridian.example/data/" + tt.wantFirst + ".json"
				if keys[0].URL != want {
					t.Errorf("oldest kept = %s, want %s", keys[0].URL, want)
				}
			}
		})
	}
}

func TestSweepNamespace_ReplacedEntryCountsAsRecent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	fillNamespace(t, st, "meridian-data-v1", 101, now)

	// re-storing the oldest entry moves it to the end
	ns, _ := st.Open(ctx, "meridian-data-v1")
	u := "https://meridian.example/data/card-000.json"
	if err := ns.Put(ctx, cache.Key{Method: http.MethodGet, URL: u}, &cache.Entry{
		Method: http.MethodGet, URL: u, StatusCode: http.StatusOK, CachedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := SweepNamespace(ctx, st, "meridian-data-v1", DefaultBounds()); err != nil {
		t.Fatalf("SweepNamespace failed: %v", err)
	}
	if _, err := ns.Match(ctx, cache.Key{Method: http.MethodGet, URL: u}); err != nil {
		t.Errorf("re-stored entry was evicted: %v", err)
	}
}

func TestSweepNamespace_AgeCeiling(t *testing.T) {
	ctx := context.Background()
	aged := func(i int) time.Time {
		if i%2 == 0 {
			return time.Now().Add(-8 * 24 * time.Hour)
		}
		return time.Now().Add(-2 * 24 * time.Hour)
	}

	t.Run("not enforced by default", func(t *testing.T) {
		st := store.NewMemoryStore()
		fillNamespace(t, st, "meridian-data-v1", 10, aged)
		removed, err := SweepNamespace(ctx, st, "meridian-data-v1", DefaultBounds())
		if err != nil {
			t.Fatalf("SweepNamespace failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})

	t.Run("enforced", func(t *testing.T) {
		st := store.NewMemoryStore()
		fillNamespace(t, st, "meridian-data-v1", 10, aged)
		bounds := DefaultBounds()
		bounds.EnforceMaxAge = true
		removed, err := SweepNamespace(ctx, st, "meridian-data-v1", bounds)
		if err != nil {
			t.Fatalf("SweepNamespace failed: %v", err)
		}
		if removed != 5 {
			t.Errorf("removed = %d, want 5", removed)
		}
	})
}

func TestSweepNamespace_InvalidBounds(t *testing.T) {
	_, err := SweepNamespace(context.Background(), store.NewMemoryStore(), "meridian-data-v1", Bounds{MaxEntries: 10, TrimTo: 20})
	if err == nil {
		t.Error("expected error for trim_to above max_entries")
	}
}

func TestDiskStore_SweepKeepsNewest(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	fillNamespace(t, st, "meridian-static-v1", 101, now)

	bounds := DefaultBounds()
	if _, err := SweepNamespace(ctx, st, "meridian-static-v1", bounds); err != nil {
		t.Fatalf("SweepNamespace failed: %v", err)
	}

	ns, _ := st.Open(ctx, "meridian-static-v1")
	keys, _ := ns.Keys(ctx)
	if len(keys) != bounds.TrimTo {
		t.Errorf("remaining = %d, want %d", len(keys), bounds.TrimTo)
	}
}
