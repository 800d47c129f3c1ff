/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/logger"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
	"github.com/redhatinsights/deid-export-go/template"
)

// StatusSink receives the report rows of every exported session.
type StatusSink interface {
	RecordStatuses(ctx context.Context, runID uuid.UUID, statuses []models.ExportStatus) error
}

// ContainerExporter exports a project, subject or session into a destination
// project.
type ContainerExporter struct {
	Client        store.Client
	Executor      *Executor
	FS            afero.Fs
	TemplatePath  string
	DestProjectID string
	// CSVOutputPath receives the report; empty disables it.
	CSVOutputPath string
	Overwrite     bool
	// FileTypes applies when the template does not list any.
	FileTypes []string

	SubjectCSVPath string
	CodeColumn     string
	NewCodeColumn  string

	Sinks []StatusSink
	RunID uuid.UUID
	Log   *zap.SugaredLogger

	report *Report
}

// exportRun is the state shared by the sessions of one Export call.
type exportRun struct {
	template  *template.Template
	export    *models.ExportConfig
	mapping   *template.SubjectMapping
	fileTypes []string
}

// Report returns the rows of the last Export call.
func (c *ContainerExporter) Report() *Report {
	if c.report == nil {
		return NewReport()
	}
	return c.report
}

// Export exports containerID and returns the number of file export errors.
// File failures never abort the run; they are counted and reported.
func (c *ContainerExporter) Export(ctx context.Context, containerID string) (int, error) {
	container, err := c.Client.Get(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}
	log := c.Log.With("container_type", container.Type, logger.ContainerIDField(container.ID))

	switch container.Type {
	case models.Project, models.Subject, models.Session:
	default:
		return 0, errors.Newf(errors.UnsupportedContainerType, "export container",
			"cannot export a %s, must be a project, subject or session", container.Type)
	}

	run, err := c.prepare()
	if err != nil {
		return 0, err
	}
	c.report = NewReport()

	switch container.Type {
	case models.Project:
		subjects, err := c.Client.ListChildren(ctx, container.ID, models.Subject)
		if err != nil {
			return 0, err
		}
		projectFiles := true
		for i := range subjects {
			if err := c.exportSubject(ctx, run, &subjects[i], nil, projectFiles, true); err != nil {
				return c.report.ErrorCount(), err
			}
			projectFiles = false
		}
	case models.Subject:
		if err := c.exportSubject(ctx, run, container, nil, false, true); err != nil {
			return c.report.ErrorCount(), err
		}
	case models.Session:
		subject, err := c.Client.Get(ctx, container.Parents.Subject)
		if err != nil {
			return 0, err
		}
		if err := c.exportSubject(ctx, run, subject, []models.Container{*container}, false, false); err != nil {
			return c.report.ErrorCount(), err
		}
	}

	errorCount := c.report.ErrorCount()
	log.Infow(fmt.Sprintf("export for %s %s is complete with %d file export errors", container.Type, container.ID, errorCount),
		"error_count", errorCount, "files", c.report.Len())
	return errorCount, nil
}

func (c *ContainerExporter) prepare() (*exportRun, error) {
	t, err := template.Load(c.FS, c.TemplatePath)
	if err != nil {
		return nil, err
	}
	exportCfg, err := t.ExportConfig()
	if err != nil {
		return nil, err
	}
	run := &exportRun{template: t, export: exportCfg, fileTypes: exportCfg.FileTypes}
	if len(run.fileTypes) == 0 {
		run.fileTypes = c.FileTypes
	}

	if c.SubjectCSVPath != "" {
		mapping, err := template.LoadSubjectMapping(c.FS, c.SubjectCSVPath, c.CodeColumn, c.NewCodeColumn)
		if err != nil {
			return nil, err
		}
		if err := template.ValidateMapping(t, mapping, c.Log); err != nil {
			return nil, err
		}
		run.mapping = mapping
	}
	return run, nil
}

// exportSubject exports the given sessions of subject, or all of them when
// sessions is nil. Only the first session carries project and subject files.
func (c *ContainerExporter) exportSubject(ctx context.Context, run *exportRun, subject *models.Container, sessions []models.Container, projectFiles, subjectFiles bool) error {
	if sessions == nil {
		var err error
		sessions, err = c.Client.ListChildren(ctx, subject.ID, models.Session)
		if err != nil {
			return fmt.Errorf("failed to list sessions of %s: %w", subject.ID, err)
		}
	}

	templatePath := c.TemplatePath
	exportCfg := run.export
	derivationErr := ""
	if run.mapping != nil {
		dir, err := afero.TempDir(c.FS, "", "deid-export-")
		if err != nil {
			return err
		}
		defer func() {
			if err := c.FS.RemoveAll(dir); err != nil {
				c.Log.Warnw("failed to remove subject template directory", "dir", dir, "error", err)
			}
		}()
		templatePath, exportCfg, err = c.derive(run, subject.Code, dir)
		if err != nil {
			derivationErr = fmt.Sprintf("failed to create subject template for %s: %v", subject.Code, err)
			c.Log.Errorw("subject template derivation failed", "subject", subject.Code, "error", err)
		}
	}

	for i := range sessions {
		if err := c.exportSession(ctx, run, exportCfg, sessions[i].ID, templatePath, derivationErr, projectFiles, subjectFiles); err != nil {
			return err
		}
		projectFiles = false
		subjectFiles = false
	}
	return nil
}

// derive writes the subject's template into dir and returns its path and
// export block.
func (c *ContainerExporter) derive(run *exportRun, subjectCode, dir string) (string, *models.ExportConfig, error) {
	path, err := template.Derive(run.template, run.mapping, subjectCode, c.FS, dir, c.Log)
	if err != nil {
		return "", nil, err
	}
	derived, err := template.Load(c.FS, path)
	if err != nil {
		return "", nil, errors.New(errors.TemplateDerivationError, "derive template", err)
	}
	exportCfg, err := derived.ExportConfig()
	if err != nil {
		return "", nil, errors.New(errors.TemplateDerivationError, "derive template", err)
	}
	return path, exportCfg, nil
}

func (c *ContainerExporter) exportSession(ctx context.Context, run *exportRun, exportCfg *models.ExportConfig, sessionID, templatePath, errMsg string, projectFiles, subjectFiles bool) error {
	var rows []models.ExportStatus
	if errMsg == "" {
		exporter := NewSessionExporter(c.Client, c.Executor, sessionID, c.DestProjectID, SessionExporterConfig{
			Export:    exportCfg,
			FileTypes: run.fileTypes,
			Overwrite: c.Overwrite,
		}, c.Log)
		_, err := exporter.InitializeFiles(ctx, InitOptions{ProjectFiles: projectFiles, SubjectFiles: subjectFiles})
		if err != nil {
			c.Log.Errorw("failed to prepare session export", "session", sessionID, "error", err)
			errMsg = fmt.Sprintf("failed to prepare export of session %s: %v", sessionID, err)
		} else {
			rows = exporter.Export(ctx, templatePath).Rows()
		}
	}
	if errMsg != "" {
		var err error
		rows, err = SessionErrorRows(ctx, c.Client, sessionID, errMsg, run.fileTypes, projectFiles, subjectFiles)
		if err != nil {
			return err
		}
	}
	return c.record(ctx, rows)
}

func (c *ContainerExporter) record(ctx context.Context, rows []models.ExportStatus) error {
	if len(rows) == 0 {
		return nil
	}
	c.report.Append(rows...)
	if c.CSVOutputPath != "" {
		if err := c.report.Flush(c.FS, c.CSVOutputPath); err != nil {
			c.Log.Errorw("failed to write report", "path", c.CSVOutputPath, "error", err)
			return err
		}
	}
	for _, sink := range c.Sinks {
		if err := sink.RecordStatuses(ctx, c.RunID, rows); err != nil {
			c.Log.Warnw("failed to record statuses", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
	return nil
}
