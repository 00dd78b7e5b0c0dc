// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startHealthcheckServer binds the health check and metrics server and serves
// it in the background.
func (a *App) startHealthcheckServer(port int) error {
	a.logger.Debug("Configuring health check server.")
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.httpServer = &http.Server{
		Handler:           a.healthMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("🩺 Health check server starting.", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly.", "error", err)
		}
	}()
	return nil
}

func (a *App) closeHealthcheckServer() {
	if a.httpServer == nil {
		a.logger.Debug("Health check server was not running.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down health check server.")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed.", "error", err)
		return
	}
	a.logger.Debug("Health check server shut down gracefully.")
}
