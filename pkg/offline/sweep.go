package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

// Eviction reasons.
const (
	evictedSize = "size"
	evictedAge  = "age"
)

// Sweep enforces the size bound on the named namespace and returns how many
// entries it removed. A namespace above MaxEntries is cut down to its TrimTo
// most recently stored entries. With EnforceMaxAge set, entries older than
// MaxAge are removed first.
func (m *Manager) Sweep(ctx context.Context, name string) (int, error) {
	return sweepNamespace(ctx, m.store, name, m.cfg.Bounds, time.Now(), m.logger)
}

// SweepAll sweeps every namespace of this manager.
func (m *Manager) SweepAll(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, name := range m.cfg.Namespaces.AllowList() {
		n, err := m.Sweep(ctx, name)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// SweepNamespace applies bounds to one namespace of st outside any manager.
func SweepNamespace(ctx context.Context, st store.Store, name string, bounds Bounds) (int, error) {
	if err := bounds.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	logger := logging.NewLogger("offline-sweep").With().Str("layer", st.Layer()).Logger()
	return sweepNamespace(ctx, st, name, bounds, time.Now(), logger)
}

func sweepNamespace(ctx context.Context, st store.Store, name string, bounds Bounds, now time.Time, logger zerolog.Logger) (int, error) {
	ns, err := st.Open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("open namespace %s: %w", name, err)
	}

	keys, err := ns.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", name, err)
	}

	removed := 0
	if bounds.EnforceMaxAge {
		kept := keys[:0:0]
		for _, key := range keys {
			entry, err := ns.Match(ctx, key)
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("read %s: %w", key, err)
			}
			if !entry.OlderThan(bounds.MaxAge, now) {
				kept = append(kept, key)
				continue
			}
			if _, err := ns.Delete(ctx, key); err != nil {
				return removed, fmt.Errorf("delete %s: %w", key, err)
			}
			removed++
			sweepEvictionsTotal.WithLabelValues(evictedAge).Inc()
			logger.Debug().Str("namespace", name).Str("key", key.String()).Str("reason", evictedAge).Msg("Evicted entry")
		}
		keys = kept
	}

	if len(keys) > bounds.MaxEntries {
		// keys are oldest first
		for _, key := range keys[:len(keys)-bounds.TrimTo] {
			if _, err := ns.Delete(ctx, key); err != nil {
				return removed, fmt.Errorf("delete %s: %w", key, err)
			}
			removed++
			sweepEvictionsTotal.WithLabelValues(evictedSize).Inc()
			logger.Debug().Str("namespace", name).Str("key", key.String()).Str("reason", evictedSize).Msg("Evicted entry")
		}
	}

	if removed > 0 {
		logger.Info().Str("namespace", name).Int("removed", removed).Msg("Swept namespace")
	}
	return removed, nil
}
