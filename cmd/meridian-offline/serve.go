package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the offline cache proxy",
		Long:  "Installs the configured version and proxies every request to the origin through the offline cache.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "listen address")
	flags.String("origin", "", "application origin, e.g. https://meridian.example")
	flags.String("version", "v1", "cache version tag")
	flags.String("manifest", "", "JSON or JSONC precache manifest (default: built-in)")
	flags.Duration("fetch-timeout", 30*time.Second, "per-attempt origin timeout, 0 disables")

	bind(v, flags.Lookup("listen"), "listen")
	bind(v, flags.Lookup("origin"), "origin")
	bind(v, flags.Lookup("version"), "version")
	bind(v, flags.Lookup("manifest"), "manifest")
	bind(v, flags.Lookup("fetch-timeout"), "fetch.timeout")
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v, true)
	if err != nil {
		return err
	}

	logging.Setup(cfg.Log)
	logger := logging.NewLogger("server")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Str("store", cfg.Store).Msg("Store opened")

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	srv := newServer(cfg, st, fetcher, logger)
	if _, err := srv.install(ctx, cfg.Version); err != nil {
		// requests pass through to the origin until an activation succeeds
		logger.Error().Err(err).Str("version", cfg.Version).Msg("Initial install failed")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("origin", cfg.Origin.String()).Msg("Starting offline cache proxy")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if active := srv.ctrl.Active(); active != nil {
		defer active.Close()
	}
	return httpServer.Shutdown(shutdownCtx)
}
