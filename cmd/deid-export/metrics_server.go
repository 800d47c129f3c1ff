/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/logger"
	"github.com/redhatinsights/deid-export-go/metrics"
)

func createMetricsServer(cfg *config.ExportConfig) *http.Server {
	// Router for metrics
	mr := chi.NewRouter()
	mr.Use(
		logger.ResponseLogger,
		metrics.PrometheusMiddleware,
		middleware.Recoverer,
	)
	mr.Get("/", statusOK)
	mr.Get("/readyz", statusOK)  // readiness check
	mr.Get("/healthz", statusOK) // liveness check
	mr.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mr,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// statusOK returns a simple 200 status code
func statusOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}

// startMetricsServer serves metrics while an export runs. The returned
// function shuts the server down.
func startMetricsServer(cfg *config.ExportConfig, log *zap.SugaredLogger) func() {
	if cfg.MetricsPort <= 0 {
		return func() {}
	}
	msrv := createMetricsServer(cfg)
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server stopped unexpectedly", "error", err)
		}
	}()
	log.Infof("metrics server listening on %s", msrv.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := msrv.Shutdown(ctx); err != nil {
			log.Errorw("metrics server shutdown failed", "error", err)
		}
	}
}
