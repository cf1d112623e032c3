package offline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/policy"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

// Manager is one version of the offline cache. It installs the manifest,
// activates by deleting older namespaces and answers fetches according to
// the request's caching policy.
type Manager struct {
	cfg      Config
	base     *url.URL
	manifest *resolvedManifest
	store    store.Store
	fetcher  network.Fetcher
	syncer   ProgressSyncer
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
	host  Host

	// writeMu is held shared by cache writes and exclusively by seal
	writeMu sync.RWMutex
	sealed  bool

	// background runs best-effort precaching
	background conc.WaitGroup
	bgCtx      context.Context
	bgCancel   context.CancelFunc
}

// New creates a manager in StateNew.
func New(cfg Config) (*Manager, error) {
	base, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	manifest, _ := cfg.Manifest.resolve(base)

	if cfg.PrecacheConcurrency == 0 {
		cfg.PrecacheConcurrency = DefaultPrecacheConcurrency
	}

	logger := logging.NewLogger("offline-cache").With().
		Str("version", cfg.Namespaces.Version).
		Str("layer", cfg.Store.Layer()).
		Logger()

	m := &Manager{
		cfg:      cfg,
		base:     base,
		manifest: manifest,
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		syncer:   cfg.ProgressSyncer,
		logger:   logger,
		state:    StateNew,
		host:     cfg.Host,
	}
	if m.syncer == nil {
		m.syncer = loggingProgressSyncer{logger: logger}
	}
	if m.host == nil {
		m.host = detachedHost{logger: logger}
	}
	m.bgCtx, m.bgCancel = context.WithCancel(context.Background())

	return m, nil
}

// Version returns the manager's version tag.
func (m *Manager) Version() string {
	return m.cfg.Namespaces.Version
}

// Namespaces returns the manager's namespace names.
func (m *Manager) Namespaces() Namespaces {
	return m.cfg.Namespaces
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wait blocks until background precaching has finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Close cancels background precaching and waits for it to stop.
func (m *Manager) Close() {
	m.bgCancel()
	m.background.Wait()
}

// transition moves the manager from one of from to to.
func (m *Manager) transition(to State, from ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok := false
	for _, f := range from {
		if m.state == f {
			ok = true
			break
		}
	}
	if !ok || !canTransition(m.state, to) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, m.state, to)
	}

	m.logger.Debug().Str("from", string(m.state)).Str("to", string(to)).Msg("Lifecycle transition")
	m.state = to
	lifecycleTransitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}

// seal stops cache writes, waiting for writes in progress to land. A sealed
// manager still answers fetches from whatever its namespaces hold.
func (m *Manager) seal() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if !m.sealed {
		m.sealed = true
		m.logger.Debug().Msg("Cache writes stopped")
	}
}

// unseal re-enables cache writes unless the manager is redundant.
func (m *Manager) unseal() {
	if m.State() == StateRedundant {
		return
	}
	m.writeMu.Lock()
	m.sealed = false
	m.writeMu.Unlock()
}

// retire marks the manager redundant and stops its background work.
func (m *Manager) retire() {
	m.seal()
	m.mu.Lock()
	if m.state != StateRedundant {
		m.state = StateRedundant
		lifecycleTransitionsTotal.WithLabelValues(string(StateRedundant)).Inc()
	}
	m.mu.Unlock()
	m.bgCancel()
	activeVersion.DeleteLabelValues(m.Version())
}

// bindHost attaches h unless a different host is already configured.
func (m *Manager) bindHost(h Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cur := m.host.(type) {
	case detachedHost:
		m.host = h
		return nil
	default:
		if cur == h {
			return nil
		}
		return fmt.Errorf("%w: manager %s is bound to another host", ErrInvalidConfig, m.Version())
	}
}

func (m *Manager) currentHost() Host {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// match looks key up in the namespace for purpose. Storage failures are
// logged and reported as a miss.
func (m *Manager) match(ctx context.Context, purpose policy.Purpose, key cache.Key) (*cache.Entry, bool) {
	name := m.cfg.Namespaces.For(purpose)
	ns, err := m.store.Open(ctx, name)
	if err != nil {
		m.logger.Warn().Err(err).Str("namespace", name).Msg("Namespace open failed, treating as miss")
		return nil, false
	}

	entry, err := ns.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.logger.Warn().Err(err).Str("namespace", name).Str("key", key.String()).Msg("Cache lookup failed, treating as miss")
		}
		return nil, false
	}
	return entry, true
}

// lookup matches key in the namespace for purpose, then in the manager's
// other namespaces.
func (m *Manager) lookup(ctx context.Context, purpose policy.Purpose, key cache.Key) (*cache.Entry, bool) {
	if entry, ok := m.match(ctx, purpose, key); ok {
		return entry, true
	}
	for _, p := range []policy.Purpose{policy.PurposeEssential, policy.PurposeStatic, policy.PurposeData} {
		if p == purpose {
			continue
		}
		if entry, ok := m.match(ctx, p, key); ok {
			return entry, true
		}
	}
	return nil, false
}

// put writes entry into the namespace for purpose. Failures are logged.
// Once the manager is sealed the write is dropped, so a request finishing
// after an upgrade cannot recreate a deleted namespace.
func (m *Manager) put(ctx context.Context, purpose policy.Purpose, key cache.Key, entry *cache.Entry) error {
	m.writeMu.RLock()
	defer m.writeMu.RUnlock()

	name := m.cfg.Namespaces.For(purpose)
	if m.sealed {
		m.logger.Debug().Str("namespace", name).Str("key", key.String()).Msg("Manager retired, response not cached")
		return errSealed
	}
	ns, err := m.store.Open(ctx, name)
	if err != nil {
		m.logger.Warn().Err(err).Str("namespace", name).Msg("Namespace open failed, response not cached")
		return err
	}
	if err := ns.Put(ctx, key, entry); err != nil {
		m.logger.Warn().Err(err).Str("namespace", name).Str("key", key.String()).Msg("Cache write failed")
		return err
	}

	m.logger.Debug().Str("namespace", name).Str("key", key.String()).Int("size", len(entry.Body)).Msg("Cached response")
	return nil
}
