/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var httpReqs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deid_export_http_requests_total",
		Help: "How many metrics server requests processed, partitioned by status code, http method and path.",
	},
	[]string{"code", "method", "path"},
)

var httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "deid_export_http_response_time_seconds",
	Help: "Duration of metrics server requests, partitioned by path.",
}, []string{"path"})

var fileExports = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deid_export_file_exports_total",
		Help: "How many file exports finished, partitioned by final state.",
	},
	[]string{"state"},
)

var fileExportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "deid_export_file_export_seconds",
	Help:    "Duration of a single file export including retries and settle delay.",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
})

var transferRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "deid_export_transfer_retries_total",
	Help: "The total number of retried file transfers.",
})

var containers = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deid_export_containers_total",
		Help: "How many destination containers were reconciled, partitioned by type and action.",
	},
	[]string{"type", "action"},
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(r.URL.Path))
		rw := NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		statusCode := rw.statusCode

		httpReqs.WithLabelValues(strconv.Itoa(statusCode), r.Method, r.URL.Path).Inc()

		timer.ObserveDuration()
	})
}

// ObserveFileExport records a finished file export.
func ObserveFileExport(state string, took time.Duration) {
	fileExports.WithLabelValues(state).Inc()
	fileExportDuration.Observe(took.Seconds())
}

func IncTransferRetry() {
	transferRetries.Inc()
}

// IncContainer counts a reconciled container; action is "created" or "updated".
func IncContainer(containerType, action string) {
	containers.WithLabelValues(containerType, action).Inc()
}

func init() {
	prometheus.MustRegister(httpReqs)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(fileExports)
	prometheus.MustRegister(fileExportDuration)
	prometheus.MustRegister(transferRetries)
	prometheus.MustRegister(containers)
}
