// Package server exposes the planner over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fxnlabs/tileplan/internal/config"
	"github.com/fxnlabs/tileplan/internal/metrics"
	"github.com/fxnlabs/tileplan/internal/planner"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	logger   *zap.Logger
	handler  http.Handler
	http     *http.Server
	listener net.Listener
	address  string
}

func New(log *zap.Logger, p *planner.Planner, cfg *config.Config) *Server {
	log = log.Named("server")

	mux := http.NewServeMux()
	mux.Handle("/plan", metrics.Middleware(PlanHandler(log, p), "/plan"))
	mux.Handle("/verify", metrics.Middleware(VerifyHandler(log, p, cfg.Planner.Epsilon, cfg.Planner.ReportMode), "/verify"))
	mux.Handle("/devices", metrics.Middleware(DevicesHandler(log, p), "/devices"))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		logger:  log,
		handler: mux,
		address: cfg.Address(),
		http: &http.Server{
			Handler:     mux,
			ReadTimeout: cfg.Server.ReadTimeout,
		},
	}
}

// Handler returns the routes without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("Starting server on", zap.String("address", listener.Addr().String()))

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.http.Shutdown(ctx)
}
