package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/offline"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

const defaultUserAgent = "meridian-offline/0.1.0"

// Store backends.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendDisk   = "disk"
)

// appConfig is the resolved binary configuration.
type appConfig struct {
	Listen  string
	Origin  *url.URL
	Version string
	Prefix  string

	ManifestPath string

	Store       string
	RedisAddr   string
	RedisPrefix string
	DiskDir     string

	UserAgent    string
	FetchTimeout time.Duration
	FetchRetries int

	Bounds              offline.Bounds
	PrecacheConcurrency int

	Log logging.Config
}

func bind(v *viper.Viper, flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("version", "v1")
	v.SetDefault("namespace_prefix", offline.DefaultNamespacePrefix)
	v.SetDefault("store", backendMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", store.DefaultRedisPrefix)
	v.SetDefault("disk.dir", defaultDataDir())
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("bounds.max_entries", offline.DefaultMaxEntries)
	v.SetDefault("bounds.trim_to", offline.DefaultTrimTo)
	v.SetDefault("bounds.max_age", offline.DefaultMaxAge)
	v.SetDefault("bounds.enforce_max_age", false)
	v.SetDefault("precache_concurrency", offline.DefaultPrecacheConcurrency)
	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
}

// loadConfig reads and validates the configuration. The origin is only
// required by serve.
func loadConfig(v *viper.Viper, needOrigin bool) (*appConfig, error) {
	level, err := logging.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	cfg := &appConfig{
		Listen:       v.GetString("listen"),
		Version:      v.GetString("version"),
		Prefix:       v.GetString("namespace_prefix"),
		ManifestPath: v.GetString("manifest"),
		Store:        v.GetString("store"),
		RedisAddr:    v.GetString("redis.addr"),
		RedisPrefix:  v.GetString("redis.prefix"),
		DiskDir:      v.GetString("disk.dir"),
		UserAgent:    v.GetString("user_agent"),
		FetchTimeout: v.GetDuration("fetch.timeout"),
		FetchRetries: v.GetInt("fetch.retries"),
		Bounds: offline.Bounds{
			MaxEntries:    v.GetInt("bounds.max_entries"),
			TrimTo:        v.GetInt("bounds.trim_to"),
			MaxAge:        v.GetDuration("bounds.max_age"),
			EnforceMaxAge: v.GetBool("bounds.enforce_max_age"),
		},
		PrecacheConcurrency: v.GetInt("precache_concurrency"),
		Log: logging.Config{
			Level:   level,
			Pretty:  v.GetBool("log.pretty"),
			Service: "meridian-offline",
		},
	}

	switch cfg.Store {
	case backendMemory, backendRedis, backendDisk:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.FetchRetries < 1 {
		return nil, fmt.Errorf("fetch.retries must be >= 1 (got %d)", cfg.FetchRetries)
	}

	if raw := v.GetString("origin"); raw != "" {
		origin, err := url.Parse(raw)
		if err != nil || !origin.IsAbs() {
			return nil, fmt.Errorf("origin %q must be an absolute URL", raw)
		}
		cfg.Origin = origin
	} else if needOrigin {
		return nil, fmt.Errorf("origin is required (flag --origin or MERIDIAN_ORIGIN)")
	}

	return cfg, nil
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *appConfig) (store.Store, func() error, error) {
	switch cfg.Store {
	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return store.NewRedisStore(client, cfg.RedisPrefix), client.Close, nil
	case backendDisk:
		st, err := store.NewDiskStore(cfg.DiskDir)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	default:
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
}

// newFetcher builds the origin client.
func newFetcher(cfg *appConfig) (*network.Client, error) {
	netCfg := network.DefaultConfig(cfg.UserAgent)
	netCfg.Timeout = cfg.FetchTimeout
	netCfg.Retry.MaxAttempts = cfg.FetchRetries
	return network.New(netCfg)
}

// managerConfig builds the manager configuration for version.
func (c *appConfig) managerConfig(st store.Store, fetcher network.Fetcher, version string) (offline.Config, error) {
	mcfg := offline.DefaultConfig(st, fetcher, c.Origin.String(), version)
	mcfg.Namespaces = offline.NamespacesFor(c.Prefix, version)
	mcfg.Bounds = c.Bounds
	mcfg.PrecacheConcurrency = c.PrecacheConcurrency

	if c.ManifestPath != "" {
		manifest, err := offline.LoadManifest(c.ManifestPath)
		if err != nil {
			return offline.Config{}, err
		}
		mcfg.Manifest = manifest
	}
	return mcfg, nil
}
