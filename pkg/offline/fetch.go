package offline

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/policy"
)

// OnFetch answers an intercepted request.
//
// Non-GET requests go straight to the network and are never cached. GET
// requests are classified and served network-first (data, navigation) or
// cache-first (static, everything else). When neither the network nor the
// cache can answer, the error wraps ErrUnavailable.
func (m *Manager) OnFetch(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		responsesTotal.WithLabelValues("passthrough", sourcePassthrough).Inc()
		return m.fetcher.Do(req)
	}

	category := policy.Classify(req)
	switch policy.StrategyFor(category) {
	case policy.StrategyNetworkFirst:
		return m.networkFirst(req, category)
	default:
		return m.cacheFirst(req, category)
	}
}

// networkFirst tries the network, caching OK responses. On network failure
// it falls back to any of the manager's namespaces and, for navigations, to
// the cached root page.
// Non-OK responses are returned unchanged when nothing is cached.
func (m *Manager) networkFirst(req *http.Request, category policy.Category) (*http.Response, error) {
	ctx := req.Context()
	purpose := policy.PurposeFor(category)
	key := cache.NewKey(req)

	resp, err := m.fetcher.Do(req)
	if err == nil && cache.IsOK(resp) {
		entry, convErr := cache.ResponseToEntry(key, resp)
		if convErr == nil {
			_ = m.put(ctx, purpose, key, entry)
			responsesTotal.WithLabelValues(string(category), sourceNetwork).Inc()
			return resp, nil
		}
		// body broke off mid-read; treat like a network failure
		err, resp = convErr, nil
	}

	if err != nil {
		m.logger.Debug().Err(err).Str("url", key.URL).Str("category", string(category)).Msg("Network failed, trying cache")
	}

	if entry, ok := m.lookup(ctx, purpose, key); ok {
		if resp != nil {
			resp.Body.Close()
		}
		responsesTotal.WithLabelValues(string(category), sourceCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	if category == policy.CategoryNavigation {
		if entry, ok := m.match(ctx, policy.PurposeEssential, m.shellKey(req.URL)); ok {
			if resp != nil {
				resp.Body.Close()
			}
			responsesTotal.WithLabelValues(string(category), sourceShell).Inc()
			return cache.EntryToResponse(entry, req), nil
		}
	}

	if err != nil {
		responsesTotal.WithLabelValues(string(category), sourceUnavailable).Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, key.URL, err)
	}

	responsesTotal.WithLabelValues(string(category), sourceNetwork).Inc()
	return resp, nil
}

// cacheFirst serves a cached entry when present, otherwise fetches and
// caches OK responses.
func (m *Manager) cacheFirst(req *http.Request, category policy.Category) (*http.Response, error) {
	ctx := req.Context()
	purpose := policy.PurposeFor(category)
	key := cache.NewKey(req)

	if entry, ok := m.lookup(ctx, purpose, key); ok {
		responsesTotal.WithLabelValues(string(category), sourceCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	resp, err := m.fetcher.Do(req)
	if err != nil {
		responsesTotal.WithLabelValues(string(category), sourceUnavailable).Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, key.URL, err)
	}

	if cache.IsOK(resp) {
		entry, err := cache.ResponseToEntry(key, resp)
		if err != nil {
			responsesTotal.WithLabelValues(string(category), sourceUnavailable).Inc()
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, key.URL, err)
		}
		_ = m.put(ctx, purpose, key, entry)
	}

	responsesTotal.WithLabelValues(string(category), sourceNetwork).Inc()
	return resp, nil
}

// shellKey is the key of the application root on the request's origin.
// The root sits under the base URL's path.
func (m *Manager) shellKey(u *url.URL) cache.Key {
	root := url.URL{Scheme: u.Scheme, Host: u.Host, Path: joinPath(m.base.Path, "/")}
	if root.Host == "" {
		root.Scheme, root.Host = m.base.Scheme, m.base.Host
	}
	return cache.KeyFor(http.MethodGet, &root)
}
