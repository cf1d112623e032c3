package offline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sourcegraph/conc/pool"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/policy"
)

// OnInstall populates the manager's namespaces from the manifest.
//
// The essential set is all-or-nothing: if any essential URL fails to fetch
// or store, the manager becomes redundant and ErrInstallFailed is returned.
// Static and data URLs are cached best-effort in the background; Wait
// blocks until they settle. On success the manager is waiting and has asked
// its host to skip the waiting phase.
func (m *Manager) OnInstall(ctx context.Context) error {
	if err := m.transition(StateInstalling, StateNew); err != nil {
		return err
	}

	m.logger.Info().
		Int("essential", len(m.manifest.Essential)).
		Int("static", len(m.manifest.Static)).
		Int("data", len(m.manifest.Data)).
		Msg("Installing")

	if err := m.precacheEssential(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Install failed")
		_ = m.transition(StateRedundant, StateInstalling)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	m.background.Go(func() {
		m.precacheBestEffort(m.bgCtx, policy.PurposeStatic, m.manifest.Static)
	})
	m.background.Go(func() {
		m.precacheBestEffort(m.bgCtx, policy.PurposeData, m.manifest.Data)
	})

	if err := m.transition(StateWaiting, StateInstalling); err != nil {
		return err
	}
	m.logger.Info().Msg("Installed, skipping wait")
	m.currentHost().SkipWaiting(m)
	return nil
}

// precacheEssential fetches every essential URL before writing any of them
// so a failure leaves the namespace untouched.
func (m *Manager) precacheEssential(ctx context.Context) error {
	entries := make([]*cache.Entry, len(m.manifest.Essential))

	p := pool.New().
		WithMaxGoroutines(m.cfg.PrecacheConcurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, u := range m.manifest.Essential {
		p.Go(func(ctx context.Context) error {
			entry, err := m.precacheFetch(ctx, u)
			if err != nil {
				precacheFailuresTotal.WithLabelValues(string(policy.PurposeEssential)).Inc()
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	m.writeMu.RLock()
	defer m.writeMu.RUnlock()
	if m.sealed {
		return errSealed
	}

	name := m.cfg.Namespaces.Essential
	ns, err := m.store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open namespace %s: %w", name, err)
	}
	for _, entry := range entries {
		if err := ns.Put(ctx, entry.Key(), entry); err != nil {
			return fmt.Errorf("store %s: %w", entry.URL, err)
		}
	}
	return nil
}

// precacheBestEffort caches urls into the namespace for purpose, logging
// and skipping any that fail.
func (m *Manager) precacheBestEffort(ctx context.Context, purpose policy.Purpose, urls []*url.URL) {
	if len(urls) == 0 {
		return
	}

	var cached int
	results := make([]bool, len(urls))
	p := pool.New().WithMaxGoroutines(m.cfg.PrecacheConcurrency)
	for i, u := range urls {
		p.Go(func() {
			entry, err := m.precacheFetch(ctx, u)
			if err != nil {
				m.logger.Warn().Err(err).Str("url", u.String()).Str("purpose", string(purpose)).Msg("Precache skipped")
				precacheFailuresTotal.WithLabelValues(string(purpose)).Inc()
				return
			}
			if err := m.put(ctx, purpose, entry.Key(), entry); err != nil {
				precacheFailuresTotal.WithLabelValues(string(purpose)).Inc()
				return
			}
			results[i] = true
		})
	}
	p.Wait()

	for _, ok := range results {
		if ok {
			cached++
		}
	}
	m.logger.Info().
		Str("purpose", string(purpose)).
		Int("cached", cached).
		Int("total", len(urls)).
		Msg("Precache finished")
}

// precacheFetch GETs u and returns it as an entry. Non-2xx responses fail.
func (m *Manager) precacheFetch(ctx context.Context, u *url.URL) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}

	resp, err := m.fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	if !cache.IsOK(resp) {
		resp.Body.Close()
		return nil, &network.FetchError{
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Class:      network.ClassifyStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return cache.ResponseToEntry(cache.NewKey(req), resp)
}
