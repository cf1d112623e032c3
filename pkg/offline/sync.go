package offline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SyncTagProgress is the background-sync tag for study progress.
const SyncTagProgress = "progress-sync"

// ProgressSyncer pushes locally recorded study progress upstream.
type ProgressSyncer interface {
	SyncProgress(ctx context.Context) error
}

// ProgressSyncFunc adapts a function to ProgressSyncer.
type ProgressSyncFunc func(ctx context.Context) error

// SyncProgress calls f.
func (f ProgressSyncFunc) SyncProgress(ctx context.Context) error {
	return f(ctx)
}

// loggingProgressSyncer is the default: there is no upstream progress
// service, so a sync only records that it happened.
type loggingProgressSyncer struct {
	logger zerolog.Logger
}

func (s loggingProgressSyncer) SyncProgress(_ context.Context) error {
	s.logger.Info().Msg("Progress sync requested, nothing to push")
	return nil
}

// OnSync handles a background-sync signal. Errors are logged and returned;
// they are never retried.
func (m *Manager) OnSync(ctx context.Context, tag string) error {
	if tag != SyncTagProgress {
		m.logger.Warn().Str("tag", tag).Msg("Ignoring unknown sync tag")
		syncTotal.WithLabelValues("unknown", "ignored").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownSyncTag, tag)
	}

	if err := m.syncer.SyncProgress(ctx); err != nil {
		m.logger.Error().Err(err).Str("tag", tag).Msg("Progress sync failed")
		syncTotal.WithLabelValues(tag, "error").Inc()
		return err
	}

	syncTotal.WithLabelValues(tag, "ok").Inc()
	return nil
}
