package offline

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
)

// Controller hosts manager versions. It installs newly registered managers,
// activates them when they ask to skip waiting and routes fetches to the
// active one. A version that fails to install never replaces the active one.
type Controller struct {
	fetcher network.Fetcher
	logger  zerolog.Logger

	// registerMu serializes Register and ActivateWaiting
	registerMu sync.Mutex

	mu      sync.Mutex
	waiting *Manager
	skip    bool

	active atomic.Pointer[Manager]
}

// NewController creates a controller. fetcher serves requests while no
// manager is active.
func NewController(fetcher network.Fetcher) *Controller {
	return &Controller{
		fetcher: fetcher,
		logger:  logging.NewLogger("offline-controller"),
	}
}

// Register installs m and, if it asks to skip waiting, activates it.
func (c *Controller) Register(ctx context.Context, m *Manager) error {
	if err := m.bindHost(c); err != nil {
		return err
	}

	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	c.mu.Lock()
	if c.waiting != nil && c.waiting != m {
		c.waiting.retire()
	}
	c.waiting, c.skip = m, false
	c.mu.Unlock()

	if err := m.OnInstall(ctx); err != nil {
		c.mu.Lock()
		c.waiting = nil
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("version", m.Version()).Msg("Registration failed, keeping current version")
		return err
	}

	c.mu.Lock()
	skip := c.skip
	c.mu.Unlock()
	if !skip {
		c.logger.Info().Str("version", m.Version()).Msg("Installed, waiting for activation")
		return nil
	}
	return c.activate(ctx, m)
}

// ActivateWaiting activates the installed manager that did not skip waiting.
func (c *Controller) ActivateWaiting(ctx context.Context) error {
	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	c.mu.Lock()
	m := c.waiting
	c.mu.Unlock()
	if m == nil {
		return fmt.Errorf("%w: no manager is waiting", ErrInvalidState)
	}
	return c.activate(ctx, m)
}

// activate stops the active manager's cache writes before m deletes its
// namespaces, and lets it write again if activation fails.
func (c *Controller) activate(ctx context.Context, m *Manager) error {
	prev := c.active.Load()
	if prev == m {
		prev = nil
	}
	if prev != nil {
		prev.seal()
	}

	if err := m.OnActivate(ctx); err != nil {
		if prev != nil && c.active.Load() == prev {
			prev.unseal()
		}
		c.logger.Error().Err(err).Str("version", m.Version()).Msg("Activation failed")
		return err
	}

	c.mu.Lock()
	if c.waiting == m {
		c.waiting = nil
	}
	c.mu.Unlock()
	return nil
}

// SkipWaiting records that m wants to activate right after install.
func (c *Controller) SkipWaiting(m *Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting == m {
		c.skip = true
	}
}

// ClaimClients makes m the active manager and retires the previous one.
func (c *Controller) ClaimClients(_ context.Context, m *Manager) error {
	prev := c.active.Swap(m)
	if prev != nil && prev != m {
		prev.retire()
		c.logger.Info().Str("from", prev.Version()).Str("to", m.Version()).Msg("Clients claimed by new version")
		return nil
	}
	c.logger.Info().Str("version", m.Version()).Msg("Clients claimed")
	return nil
}

// Active returns the active manager, or nil.
func (c *Controller) Active() *Manager {
	return c.active.Load()
}

// Fetch routes req to the active manager, or straight to the network when
// none is active.
func (c *Controller) Fetch(req *http.Request) (*http.Response, error) {
	if m := c.active.Load(); m != nil {
		return m.OnFetch(req)
	}
	return c.fetcher.Do(req)
}

// Sync forwards a background-sync tag to the active manager.
func (c *Controller) Sync(ctx context.Context, tag string) error {
	m := c.active.Load()
	if m == nil {
		return fmt.Errorf("%w: no active manager", ErrInvalidState)
	}
	return m.OnSync(ctx, tag)
}
