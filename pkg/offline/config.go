package offline

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/policy"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

// Size bounds applied by the sweep.
const (
	DefaultMaxEntries = 100
	DefaultTrimTo     = 50
	DefaultMaxAge     = 7 * 24 * time.Hour

	DefaultPrecacheConcurrency = 4
	DefaultNamespacePrefix     = "meridian"
)

// Namespaces names the three namespaces of one manager version.
type Namespaces struct {
	Essential string
	Static    string
	Data      string
	Version   string
}

// NamespacesFor derives version-tagged namespace names,
// e.g. "meridian-essential-v3".
func NamespacesFor(prefix, version string) Namespaces {
	if prefix == "" {
		prefix = DefaultNamespacePrefix
	}
	return Namespaces{
		Essential: fmt.Sprintf("%s-%s-%s", prefix, policy.PurposeEssential, version),
		Static:    fmt.Sprintf("%s-%s-%s", prefix, policy.PurposeStatic, version),
		Data:      fmt.Sprintf("%s-%s-%s", prefix, policy.PurposeData, version),
		Version:   version,
	}
}

// For returns the namespace name serving purpose p.
func (n Namespaces) For(p policy.Purpose) string {
	switch p {
	case policy.PurposeStatic:
		return n.Static
	case policy.PurposeData:
		return n.Data
	default:
		return n.Essential
	}
}

// AllowList returns the namespaces that survive activation.
func (n Namespaces) AllowList() []string {
	return []string{n.Essential, n.Static, n.Data}
}

func (n Namespaces) allowed(name string) bool {
	for _, a := range n.AllowList() {
		if a == name {
			return true
		}
	}
	return false
}

// Validate checks that the three names are set, distinct and storable.
func (n Namespaces) Validate() error {
	if n.Version == "" {
		return errors.New("namespace version is required")
	}
	seen := make(map[string]bool, 3)
	for _, name := range n.AllowList() {
		if err := store.ValidateName(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("duplicate namespace name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Bounds is the size policy enforced by the sweep.
type Bounds struct {
	// MaxEntries is the count above which a namespace is trimmed.
	MaxEntries int

	// TrimTo is the number of most recent entries kept after a trim.
	TrimTo int

	// MaxAge is the age ceiling of an entry.
	MaxAge time.Duration

	// EnforceMaxAge makes the sweep drop entries older than MaxAge.
	// Off by default: the count trim is the only eviction.
	EnforceMaxAge bool
}

// DefaultBounds returns 100/50 entries and a 7 day age ceiling.
func DefaultBounds() Bounds {
	return Bounds{
		MaxEntries: DefaultMaxEntries,
		TrimTo:     DefaultTrimTo,
		MaxAge:     DefaultMaxAge,
	}
}

// Validate checks the bounds are consistent.
func (b Bounds) Validate() error {
	if b.MaxEntries < 1 {
		return fmt.Errorf("max_entries must be >= 1 (got %d)", b.MaxEntries)
	}
	if b.TrimTo < 0 || b.TrimTo > b.MaxEntries {
		return fmt.Errorf("trim_to must be between 0 and max_entries (got %d)", b.TrimTo)
	}
	if b.EnforceMaxAge && b.MaxAge <= 0 {
		return fmt.Errorf("max_age must be > 0 when enforced (got %s)", b.MaxAge)
	}
	return nil
}

// Config holds the manager configuration.
type Config struct {
	// Namespaces of this manager version
	Namespaces Namespaces

	// Manifest lists the URLs cached at install time
	Manifest Manifest

	// Bounds for the sweep
	Bounds Bounds

	// BaseURL resolves relative manifest URLs (the application origin)
	BaseURL string

	// Store is the persistent cache store (REQUIRED)
	Store store.Store

	// Fetcher reaches the network (REQUIRED)
	Fetcher network.Fetcher

	// Host receives the skip-waiting and claim signals. Optional; a
	// Controller binds itself on Register.
	Host Host

	// ProgressSyncer handles the "progress-sync" background signal.
	// Defaults to a logging stub.
	ProgressSyncer ProgressSyncer

	// PrecacheConcurrency bounds parallel fetches per install step
	PrecacheConcurrency int
}

// DefaultConfig returns a configuration for version with the default
// manifest and bounds.
func DefaultConfig(st store.Store, fetcher network.Fetcher, baseURL, version string) Config {
	return Config{
		Namespaces:          NamespacesFor(DefaultNamespacePrefix, version),
		Manifest:            DefaultManifest(),
		Bounds:              DefaultBounds(),
		BaseURL:             baseURL,
		Store:               st,
		Fetcher:             fetcher,
		PrecacheConcurrency: DefaultPrecacheConcurrency,
	}
}

// validate checks the configuration and returns the parsed base URL.
func (c Config) validate() (*url.URL, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if c.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidConfig)
	}
	if err := c.Namespaces.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.PrecacheConcurrency < 0 {
		return nil, fmt.Errorf("%w: precache concurrency must be >= 0", ErrInvalidConfig)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, c.BaseURL)
	}
	if _, err := c.Manifest.resolve(base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return base, nil
}
