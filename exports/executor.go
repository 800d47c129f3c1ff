/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/deid"
	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/metrics"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// FileExporter is the per-job collaborator that performs the transfer.
type FileExporter interface {
	State() models.JobState
	LocalDeidExport(ctx context.Context, templatePath string) error
	Fail(msg string)
	Status(ctx context.Context) models.ExportStatus
}

// ExporterFactory builds the exporter of one job on a worker's own client.
type ExporterFactory func(ctx context.Context, client store.Client, job models.FileExportJob) FileExporter

// DeidExporterFactory builds deid.FileExporters.
func DeidExporterFactory(deidentifier deid.Deidentifier, fs afero.Fs, log *zap.SugaredLogger) ExporterFactory {
	return func(ctx context.Context, client store.Client, job models.FileExportJob) FileExporter {
		return deid.NewFileExporter(ctx, client, job, deidentifier, fs, log)
	}
}

// Executor runs file export jobs on a bounded pool. Jobs never share a store
// client; each builds its own from Credential.
type Executor struct {
	Credential  string
	Clients     store.ClientFactory
	Exporters   ExporterFactory
	Workers     int
	Retry       RetryPolicy
	SettleDelay time.Duration
	Log         *zap.SugaredLogger
}

// NewExecutor fills the pool width, retry policy and settle delay from cfg.
func NewExecutor(cfg *config.ExportConfig, credential string, clients store.ClientFactory, exporters ExporterFactory, log *zap.SugaredLogger) *Executor {
	return &Executor{
		Credential:  credential,
		Clients:     clients,
		Exporters:   exporters,
		Workers:     cfg.Workers,
		Retry:       RetryPolicyFromConfig(cfg.Retry),
		SettleDelay: cfg.SettleDelay,
		Log:         log,
	}
}

// Run exports every job and returns their statuses in submission order.
// A failing or panicking job only affects its own row.
func (e *Executor) Run(ctx context.Context, jobs []models.FileExportJob, templatePath string) []models.ExportStatus {
	workers := e.Workers
	if workers < 1 {
		workers = config.DefaultWorkers()
	}
	mapper := iter.Mapper[models.FileExportJob, models.ExportStatus]{MaxGoroutines: workers}
	return mapper.Map(jobs, func(job *models.FileExportJob) models.ExportStatus {
		start := time.Now()
		status := e.runJob(ctx, *job, templatePath)
		metrics.ObserveFileExport(string(status.State), time.Since(start))
		return status
	})
}

func (e *Executor) runJob(ctx context.Context, job models.FileExportJob, templatePath string) (status models.ExportStatus) {
	log := e.Log.With("origin_parent", job.OriginParent, "origin_filename", job.OriginFilename)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("file export panicked", "error", r)
			status = job.Failed(fmt.Sprintf("file export panicked: %v", r)).Status()
		}
	}()

	if job.State == models.JobError {
		return job.Status()
	}

	client, err := e.Clients(e.Credential)
	if err != nil {
		log.Errorw("failed to create store client", "error", err)
		return job.Failed(fmt.Sprintf("failed to create store client: %v", err)).Status()
	}

	exporter := e.Exporters(ctx, client, job)
	if exporter.State() != models.JobError {
		err := e.Retry.Do(ctx, func(ctx context.Context) error {
			return exporter.LocalDeidExport(ctx, templatePath)
		}, func(attempt int, err error) {
			metrics.IncTransferRetry()
			log.Warnw("retrying file transfer", "attempt", attempt, "error", err)
		})
		if err != nil {
			exporter.Fail(errors.New(errors.FileExportError, "export "+job.OriginFilename, err).Error())
		}
	}

	if e.SettleDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(e.SettleDelay):
		}
	}
	return exporter.Status(ctx)
}
