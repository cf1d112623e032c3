package offline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// Manifest lists the URLs cached at install time.
type Manifest struct {
	// Essential URLs form the application shell. All must cache or install fails.
	Essential []string `json:"essential"`

	// Static asset URLs, cached best-effort.
	Static []string `json:"static"`

	// Data file URLs, cached best-effort.
	Data []string `json:"data"`
}

// DefaultManifest returns the Meridian Mastery shell, icons and point data.
func DefaultManifest() Manifest {
	return Manifest{
		Essential: []string{
			"/",
			"/index.html",
			"/manifest.json",
		},
		Static: []string{
			"/icons/icon-192.png",
			"/icons/icon-512.png",
			"/icons/logo.svg",
			"/favicon.ico",
		},
		Data: []string{
			"/data/points.json",
			"/data/meridians.json",
		},
	}
}

// resolvedManifest holds absolute URLs.
type resolvedManifest struct {
	Essential []*url.URL
	Static    []*url.URL
	Data      []*url.URL
}

// resolve turns every manifest URL into an absolute URL against base.
// Root-relative paths are placed under base's path, matching how the proxy
// maps request paths onto the origin.
func (m Manifest) resolve(base *url.URL) (*resolvedManifest, error) {
	dir := *base
	if !strings.HasSuffix(dir.Path, "/") {
		dir.Path += "/"
		dir.RawPath = ""
	}

	resolve := func(list []string) ([]*url.URL, error) {
		out := make([]*url.URL, 0, len(list))
		for _, raw := range list {
			ref, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("manifest url %q: %w", raw, err)
			}
			if !ref.IsAbs() && ref.Host == "" && strings.HasPrefix(ref.Path, "/") {
				rooted := *ref
				rooted.Path = joinPath(base.Path, ref.Path)
				rooted.RawPath = ""
				ref = &rooted
			}
			out = append(out, dir.ResolveReference(ref))
		}
		return out, nil
	}

	var (
		r   resolvedManifest
		err error
	)
	if r.Essential, err = resolve(m.Essential); err != nil {
		return nil, err
	}
	if r.Static, err = resolve(m.Static); err != nil {
		return nil, err
	}
	if r.Data, err = resolve(m.Data); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseManifest parses a JSON manifest. Comments and trailing commas are
// allowed.
func ParseManifest(data []byte) (Manifest, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(standardized, &m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(m.Essential) == 0 {
		return Manifest{}, fmt.Errorf("invalid manifest: essential list is empty")
	}
	return m, nil
}

// LoadManifest reads and parses the manifest file at path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}
