package offline

import (
	"context"
	"fmt"
)

// OnActivate deletes every namespace outside the manager's allow-list,
// sweeps the remaining ones and claims all clients. Cleanup and sweep
// failures are logged only.
func (m *Manager) OnActivate(ctx context.Context) error {
	if err := m.transition(StateActivating, StateWaiting); err != nil {
		return err
	}

	m.deleteStaleNamespaces(ctx)

	for _, name := range m.cfg.Namespaces.AllowList() {
		if _, err := m.Sweep(ctx, name); err != nil {
			m.logger.Warn().Err(err).Str("namespace", name).Msg("Sweep failed")
		}
	}

	if err := m.currentHost().ClaimClients(ctx, m); err != nil {
		m.logger.Error().Err(err).Msg("Claiming clients failed")
		return fmt.Errorf("claim clients: %w", err)
	}

	if err := m.transition(StateActive, StateActivating); err != nil {
		return err
	}
	activeVersion.WithLabelValues(m.Version()).Set(1)
	m.logger.Info().Msg("Activated")
	return nil
}

func (m *Manager) deleteStaleNamespaces(ctx context.Context) {
	names, err := m.store.Names(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Listing namespaces failed, skipping cleanup")
		return
	}

	for _, name := range names {
		if m.cfg.Namespaces.allowed(name) {
			continue
		}
		dropped, err := m.store.Drop(ctx, name)
		if err != nil {
			m.logger.Warn().Err(err).Str("namespace", name).Msg("Deleting stale namespace failed")
			continue
		}
		if dropped {
			namespacesDeletedTotal.Inc()
			m.logger.Info().Str("namespace", name).Msg("Deleted stale namespace")
		}
	}
}
