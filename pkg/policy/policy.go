// Package policy classifies intercepted requests into caching categories and
// maps each category to the strategy the offline cache manager applies.
package policy

import (
	"net/http"
	"path"
	"strings"
)

// Category is the caching category of a request.
type Category string

const (
	// CategoryData covers study data files (flashcard and point JSON).
	CategoryData Category = "data"

	// CategoryStatic covers images, style sheets and scripts.
	CategoryStatic Category = "static"

	// CategoryNavigation covers page loads that accept HTML.
	CategoryNavigation Category = "navigation"

	// CategoryDefault covers everything else.
	CategoryDefault Category = "default"
)

// Strategy is the fetch/cache protocol applied to a category.
type Strategy string

const (
	// StrategyNetworkFirst tries the network and falls back to the cache.
	StrategyNetworkFirst Strategy = "network-first"

	// StrategyCacheFirst serves from the cache and fetches only on a miss.
	StrategyCacheFirst Strategy = "cache-first"
)

// Purpose names the namespace a category reads from and writes to.
type Purpose string

const (
	PurposeEssential Purpose = "essential"
	PurposeStatic    Purpose = "static"
	PurposeData      Purpose = "data"
)

var (
	dataSegments   = []string{"/data/"}
	dataExtensions = []string{".json", ".csv"}

	staticSegments   = []string{"/icons/", "/assets/"}
	staticExtensions = []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".css",
		".js", ".mjs",
	}
)

// Classify returns the category of req. First match wins:
// data, static, navigation, default.
func Classify(req *http.Request) Category {
	p := req.URL.Path
	ext := strings.ToLower(path.Ext(p))

	switch {
	case containsAny(p, dataSegments) || hasAny(ext, dataExtensions):
		return CategoryData
	case hasAny(ext, staticExtensions) || containsAny(p, staticSegments):
		return CategoryStatic
	case acceptsHTML(req.Header):
		return CategoryNavigation
	default:
		return CategoryDefault
	}
}

// StrategyFor returns the strategy applied to c.
func StrategyFor(c Category) Strategy {
	switch c {
	case CategoryData, CategoryNavigation:
		return StrategyNetworkFirst
	default:
		return StrategyCacheFirst
	}
}

// PurposeFor returns the namespace purpose used for c.
// Navigation responses share the essential namespace with the shell.
func PurposeFor(c Category) Purpose {
	switch c {
	case CategoryData:
		return PurposeData
	case CategoryStatic:
		return PurposeStatic
	default:
		return PurposeEssential
	}
}

func acceptsHTML(h http.Header) bool {
	for _, v := range h.Values("Accept") {
		if strings.Contains(strings.ToLower(v), "text/html") {
			return true
		}
	}
	return false
}

func containsAny(p string, segments []string) bool {
	// A trailing directory without slash ("/icons") still counts.
	p = strings.ToLower(p) + "/"
	for _, s := range segments {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}

func hasAny(ext string, exts []string) bool {
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
