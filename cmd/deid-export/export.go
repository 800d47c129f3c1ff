/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/db"
	"github.com/redhatinsights/deid-export-go/deid"
	"github.com/redhatinsights/deid-export-go/exports"
	ekafka "github.com/redhatinsights/deid-export-go/kafka"
	"github.com/redhatinsights/deid-export-go/logger"
	"github.com/redhatinsights/deid-export-go/models"
	es3 "github.com/redhatinsights/deid-export-go/s3"
	"github.com/redhatinsights/deid-export-go/store"
	"github.com/redhatinsights/deid-export-go/template"
)

// exportApp holds what an export run needs besides its arguments.
type exportApp struct {
	cfg          *config.ExportConfig
	log          *zap.SugaredLogger
	fs           afero.Fs
	clients      store.ClientFactory
	deidentifier deid.Deidentifier
}

type exportOptions struct {
	originPath     string
	projectPath    string
	templatePath   string
	csvOutputPath  string
	apiKey         string
	overwrite      bool
	subjectCSVPath string
	workers        int
}

// exportResult describes a finished run.
type exportResult struct {
	runID         uuid.UUID
	origin        *models.Container
	csvOutputPath string
	errorCount    int
	report        *exports.Report
}

func newExportCommand(app *exportApp) *cobra.Command {
	opts := exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <origin-path> <project-path> <template>",
		Short: "Export a project, subject or session through a de-identification template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.originPath, opts.projectPath, opts.templatePath = args[0], args[1], args[2]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopMetrics := startMetricsServer(app.cfg, app.log)
			defer stopMetrics()

			result, err := app.run(ctx, opts)
			if err != nil {
				return err
			}
			if result.errorCount > 0 {
				cmd.Printf("%d file exports failed, see %s\n", result.errorCount, result.csvOutputPath)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.csvOutputPath, "csv-output-path", "", "path of the export report (default <type>_<id>_export.csv)")
	flags.StringVar(&opts.apiKey, "api-key", "", "store api key, <host>:<secret> (default API_KEY)")
	flags.BoolVar(&opts.overwrite, "overwrite-files", false, "replace files that already exist in the destination")
	flags.StringVar(&opts.subjectCSVPath, "subject-csv-path", "", "csv of per-subject template values")
	flags.IntVar(&opts.workers, "workers", 0, "number of parallel file exports (default WORKERS)")
	return cmd
}

func (a *exportApp) run(ctx context.Context, opts exportOptions) (*exportResult, error) {
	cfg := *a.cfg
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	apiKey := opts.apiKey
	if apiKey == "" {
		apiKey = cfg.StoreConfig.APIKey
	}

	client, err := a.clients(apiKey)
	if err != nil {
		return nil, err
	}

	origin, err := client.Lookup(ctx, opts.originPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve origin %s: %w", opts.originPath, err)
	}
	dest, err := client.Lookup(ctx, opts.projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination %s: %w", opts.projectPath, err)
	}
	if dest.Type != models.Project {
		return nil, fmt.Errorf("destination %s is a %s, must be a project", opts.projectPath, dest.Type)
	}

	runID := uuid.New()
	log := a.log.With(logger.RunIDField(runID.String()))

	templatePath := opts.templatePath
	if es3.IsURI(templatePath) {
		dir, err := afero.TempDir(a.fs, "", "deid-template-")
		if err != nil {
			return nil, err
		}
		defer a.fs.RemoveAll(dir)
		templatePath, err = es3.FetchTemplate(ctx, es3.NewClient(&cfg, log), opts.templatePath, a.fs, dir)
		if err != nil {
			return nil, err
		}
	}

	csvOutputPath := opts.csvOutputPath
	if csvOutputPath == "" {
		csvOutputPath = fmt.Sprintf("%s_%s_export.csv", origin.Type, origin.ID)
	}

	var sinks []exports.StatusSink
	var ledger *models.ExportDB
	if cfg.LedgerEnabled {
		ledger, err = db.OpenLedger(cfg, log)
		if err != nil {
			return nil, err
		}
		if _, err := ledger.CreateRun(newRunRecord(a.fs, runID, origin, dest, opts.templatePath, templatePath, log)); err != nil {
			return nil, fmt.Errorf("failed to record export run: %w", err)
		}
		sinks = append(sinks, ledger)
	}
	if len(cfg.KafkaConfig.KafkaBrokers) > 0 {
		producer, err := ekafka.NewProducer(&cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		producer.StartProducer()
		defer producer.Close(15 * time.Second)
		sinks = append(sinks, producer)
	}

	executor := exports.NewExecutor(&cfg, apiKey, a.clients, exports.DeidExporterFactory(a.deidentifier, a.fs, log), log)
	exporter := &exports.ContainerExporter{
		Client:         client,
		Executor:       executor,
		FS:             a.fs,
		TemplatePath:   templatePath,
		DestProjectID:  dest.ID,
		CSVOutputPath:  csvOutputPath,
		Overwrite:      opts.overwrite,
		FileTypes:      cfg.FileTypes,
		SubjectCSVPath: opts.subjectCSVPath,
		CodeColumn:     cfg.SubjectCodes.Column,
		NewCodeColumn:  cfg.SubjectCodes.NewColumn,
		Sinks:          sinks,
		RunID:          runID,
		Log:            log,
	}

	errorCount, exportErr := exporter.Export(ctx, origin.ID)

	if ledger != nil {
		if err := ledger.FinishRun(runID, errorCount); err != nil {
			log.Errorw("failed to finish export run", "error", err)
		}
	}
	if exportErr != nil {
		return nil, exportErr
	}

	if cfg.StorageConfig.Bucket != "" && exporter.Report().HeaderWritten() {
		compressor := &es3.Compressor{
			Client: es3.NewClient(&cfg, log),
			Bucket: cfg.StorageConfig.Bucket,
			Log:    log,
		}
		meta := es3.NewExportMeta(runID, string(origin.Type), origin.ID, dest.ID, opts.templatePath,
			filepath.Base(csvOutputPath), exporter.Report().Rows(), time.Now())
		if _, err := compressor.Archive(ctx, a.fs, csvOutputPath, meta); err != nil {
			log.Errorw("failed to archive export report", "error", err)
		}
	}

	return &exportResult{
		runID:         runID,
		origin:        origin,
		csvOutputPath: csvOutputPath,
		errorCount:    errorCount,
		report:        exporter.Report(),
	}, nil
}

// newRunRecord builds the ledger entry of a run. An unreadable template is
// left to the exporter to report.
func newRunRecord(fs afero.Fs, runID uuid.UUID, origin, dest *models.Container, templateName, templatePath string, log *zap.SugaredLogger) *models.ExportRun {
	run := &models.ExportRun{
		ID:                 runID,
		OriginContainer:    origin.ID,
		OriginType:         origin.Type,
		DestinationProject: dest.ID,
		Template:           templateName,
		Status:             models.Running,
	}
	t, err := template.Load(fs, templatePath)
	if err != nil {
		return run
	}
	exportCfg, err := t.ExportConfig()
	if err != nil {
		return run
	}
	data, err := json.Marshal(exportCfg)
	if err != nil {
		log.Warnw("failed to encode export config", "error", err)
		return run
	}
	run.ExportConfig = data
	return run
}
