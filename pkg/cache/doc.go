// Package cache provides the entry model shared by the offline cache stores.
//
// The package is deliberately storage-agnostic:
//
// - Deterministic request keys (method + canonical URL)
// - Entries capturing status, headers and body of a response
// - A zstd-compressed JSON codec with sha256 body verification
// - Conversion between *http.Response and Entry
// - Prometheus metrics recorded by every store backend
//
// # Keys
//
//	req, _ := http.NewRequest(http.MethodGet, "https://Meridian.example:443/data/points.json?b=2&a=1", nil)
//	key := cache.NewKey(req)
//	// key.String() == "GET https://meridian.example/data/points.json?a=1&b=2"
//
// # HTTP Response Caching
//
//	entry, err := cache.ResponseToEntry(key, resp)
//	if err != nil {
//		return err
//	}
//	// resp.Body is still readable here
//
//	data, err := cache.Encode(entry)
//	// ... persist data ...
//
//	entry, err = cache.Decode(data)
//	served := cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - offline_cache_hits_total{layer}
//   - offline_cache_misses_total{layer}
//   - offline_cache_writes_total{layer}
//   - offline_cache_deletes_total{layer}
//   - offline_cache_written_bytes_total{layer}
//   - offline_cache_errors_total{layer, operation}
package cache
