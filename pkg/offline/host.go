package offline

import (
	"context"

	"github.com/rs/zerolog"
)

// Host is the environment a manager runs in. It receives the manager's
// lifecycle signals.
type Host interface {
	// SkipWaiting asks the host to activate m as soon as it is installed.
	SkipWaiting(m *Manager)

	// ClaimClients makes m serve every current client immediately.
	ClaimClients(ctx context.Context, m *Manager) error
}

// detachedHost is used when no Host is configured. It only logs.
type detachedHost struct {
	logger zerolog.Logger
}

func (h detachedHost) SkipWaiting(m *Manager) {
	h.logger.Debug().Str("version", m.Version()).Msg("Skip waiting requested without host")
}

func (h detachedHost) ClaimClients(_ context.Context, m *Manager) error {
	h.logger.Debug().Str("version", m.Version()).Msg("Claim requested without host")
	return nil
}
