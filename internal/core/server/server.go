// Package server wires the HTTP surface: probes, metrics, the control
// endpoints and the catch-all fetch interception.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/offline-asset-cache/internal/core/config"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/offline-asset-cache/internal/core/middleware"
	"github.com/mohammed-shakir/offline-asset-cache/internal/core/router"
)

type Controller interface {
	router.Dispatcher
	health.ReadinessReporter
}

type Deps struct {
	Controller  Controller
	Clients     http.Handler // SSE stream of broadcasts
	PassThrough http.Handler
	Metrics     http.Handler // nil disables /metrics
	// OnShutdown runs when shutdown starts, e.g. to end long-lived streams.
	OnShutdown func()
}

// Handler builds the router.
func Handler(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Controller))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/sw", func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Post("/message", router.HandleMessage(logger, d.Controller))
		r.Post("/push", router.HandlePush(d.Controller))
		r.Post("/notificationclick", router.HandleNotificationClick(d.Controller))
		r.Get("/state", router.HandleState(d.Controller))
		if d.Clients != nil {
			r.Method(http.MethodGet, "/clients", d.Clients)
		}
	})

	r.Handle("/*", router.HandleFetch(logger, d.Controller, d.PassThrough))
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.FetchTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if d.OnShutdown != nil {
		srv.RegisterOnShutdown(d.OnShutdown)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
