package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/metrics"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/network"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/offline"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

// server wires the controller to its HTTP surface.
type server struct {
	cfg     *appConfig
	store   store.Store
	fetcher network.Fetcher
	ctrl    *offline.Controller
	logger  zerolog.Logger
}

func newServer(cfg *appConfig, st store.Store, fetcher network.Fetcher, logger zerolog.Logger) *server {
	return &server{
		cfg:     cfg,
		store:   st,
		fetcher: fetcher,
		ctrl:    offline.NewController(fetcher),
		logger:  logger,
	}
}

// install registers a manager for version with the controller.
func (s *server) install(ctx context.Context, version string) (*offline.Manager, error) {
	mcfg, err := s.cfg.managerConfig(s.store, s.fetcher, version)
	if err != nil {
		return nil, err
	}
	m, err := offline.New(mcfg)
	if err != nil {
		return nil, err
	}
	if err := s.ctrl.Register(ctx, m); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /_offline/sync/{tag}", s.syncHandler)
	mux.HandleFunc("POST /_offline/activate", s.activateHandler)
	mux.Handle("/", s.ctrl.Handler(s.cfg.Origin))
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once a version is active and the store answers.
func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.Names(ctx); err != nil {
		http.Error(w, fmt.Sprintf("store unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}
	active := s.ctrl.Active()
	if active == nil {
		http.Error(w, "no active version", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "READY %s", active.Version())
}

func (s *server) syncHandler(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	err := s.ctrl.Sync(r.Context(), tag)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, offline.ErrUnknownSyncTag):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, offline.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "sync failed", http.StatusInternalServerError)
	}
}

type activateResponse struct {
	Version    string   `json:"version"`
	State      string   `json:"state"`
	Namespaces []string `json:"namespaces"`
}

// activateHandler installs the configured version, or ?version=, and
// activates it.
func (s *server) activateHandler(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		version = s.cfg.Version
	}

	m, err := s.install(r.Context(), version)
	if err != nil {
		s.logger.Error().Err(err).Str("version", version).Msg("Activation request failed")
		status := http.StatusBadGateway
		if errors.Is(err, offline.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(activateResponse{
		Version:    m.Version(),
		State:      string(m.State()),
		Namespaces: m.Namespaces().AllowList(),
	})
}
