/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package s3

import (
	"github.com/prometheus/client_golang/prometheus"
)

var totalUploads = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "deid_export_total_s3_uploads",
	Help: "The total number of S3 archive uploads, including failed uploads.",
})

var failUploads = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "deid_export_failed_s3_uploads",
	Help: "The total number of failed S3 archive uploads.",
})

var uploadSizes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "deid_export_archive_sizes",
	Help:    "Size of run archives posted",
	Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
}, []string{"container_type"})

func init() {
	prometheus.MustRegister(totalUploads)
	prometheus.MustRegister(failUploads)
	prometheus.MustRegister(uploadSizes)
}
