/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package deid

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// FileExporter de-identifies one origin file and uploads it to its
// destination parent. It is built per job and owned by a single worker.
type FileExporter struct {
	client store.Client
	deid   Deidentifier
	fs     afero.Fs
	log    *zap.SugaredLogger

	job      models.FileExportJob
	origin   *models.File
	dest     *models.File
	state    models.JobState
	errors   []string
	uploaded bool
	// exists marks a destination file kept because overwrite is off.
	exists bool
}

// NewFileExporter resolves the origin and destination files of job. Failures
// are recorded on the exporter rather than returned so they end up in the
// report.
func NewFileExporter(ctx context.Context, client store.Client, job models.FileExportJob, deidentifier Deidentifier, fs afero.Fs, log *zap.SugaredLogger) *FileExporter {
	e := &FileExporter{
		client: client,
		deid:   deidentifier,
		fs:     fs,
		job:    job,
		state:  models.JobPending,
		errors: append([]string(nil), job.Errors...),
		log: log.With(
			"origin_parent", job.OriginParent,
			"origin_filename", job.OriginFilename,
			"export_parent", job.ExportParent,
			"export_filename", job.ExportFilename,
		),
	}
	if job.State == models.JobError {
		e.state = models.JobError
		return e
	}

	origin, err := client.GetFile(ctx, job.OriginParent, job.OriginFilename)
	switch {
	case err != nil:
		e.Fail(fmt.Sprintf("failed to read %s from %s %s: %v", job.OriginFilename, job.OriginParentType, job.OriginParent, err))
		return e
	case origin == nil:
		e.Fail(fmt.Sprintf("%s does not exist in %s %s", job.OriginFilename, job.OriginParentType, job.OriginParent))
		return e
	}
	e.origin = origin

	dest, err := client.GetFile(ctx, job.ExportParent, job.ExportFilename)
	if err != nil {
		e.Fail(fmt.Sprintf("failed to read %s from %s: %v", job.ExportFilename, job.ExportParent, err))
		return e
	}
	e.dest = dest
	if dest != nil && !job.Overwrite {
		msg := fmt.Sprintf("%s already exists in %s and was not overwritten", job.ExportFilename, job.ExportParent)
		e.exists = true
		e.errors = append(e.errors, msg)
		e.log.Warnw("destination file exists", "detail", msg)
	}
	return e
}

func (e *FileExporter) State() models.JobState {
	return e.state
}

// Fail moves the exporter to the error state and records msg.
func (e *FileExporter) Fail(msg string) {
	e.state = models.JobError
	e.errors = append(e.errors, msg)
	e.log.Errorw("file export failed", "error", msg)
}

// LocalDeidExport downloads the origin file, de-identifies it with the
// profile at templatePath and uploads the result. Problems a retry cannot
// fix are recorded on the exporter; a returned error is worth retrying.
// A destination file kept without overwrite is left untouched.
func (e *FileExporter) LocalDeidExport(ctx context.Context, templatePath string) error {
	if e.state == models.JobError || e.exists {
		return nil
	}
	if ok, _ := afero.Exists(e.fs, templatePath); !ok {
		e.Fail(fmt.Sprintf("de-identification profile %s does not exist, %s will not be exported to %s",
			templatePath, e.job.ExportFilename, e.job.ExportParent))
		return nil
	}

	dir, err := afero.TempDir(e.fs, "", "deid-file-")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := e.fs.RemoveAll(dir); err != nil {
			e.log.Warnw("failed to remove working directory", "dir", dir, "error", err)
		}
	}()

	inputPath := filepath.Join(dir, "in", filepath.Base(e.job.OriginFilename))
	outputPath := filepath.Join(dir, "out", filepath.Base(e.job.ExportFilename))
	for _, d := range []string{filepath.Dir(inputPath), filepath.Dir(outputPath)} {
		if err := e.fs.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	e.log.Debugw("downloading origin file", "path", inputPath)
	if err := e.download(ctx, inputPath); err != nil {
		return err
	}

	e.log.Debugw("applying de-identification profile", "profile", filepath.Base(templatePath))
	if err := e.deid.Deidentify(ctx, e.fs, templatePath, inputPath, outputPath); err != nil {
		return fmt.Errorf("failed to de-identify %s: %w", e.job.OriginFilename, err)
	}

	if e.job.Overwrite {
		existing, err := e.client.GetFile(ctx, e.job.ExportParent, e.job.ExportFilename)
		if err != nil {
			return err
		}
		if existing != nil {
			e.log.Debugw("deleting destination file before upload")
			if err := e.client.DeleteFile(ctx, e.job.ExportParent, e.job.ExportFilename); err != nil {
				return fmt.Errorf("failed to delete %s from %s: %w", e.job.ExportFilename, e.job.ExportParent, err)
			}
		}
	}

	e.log.Debugw("uploading de-identified file")
	out, err := e.fs.Open(outputPath)
	if err != nil {
		return fmt.Errorf("de-identification produced no output for %s: %w", e.job.OriginFilename, err)
	}
	defer out.Close()
	if err := e.client.UploadFile(ctx, e.job.ExportParent, e.job.ExportFilename, out); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", e.job.ExportFilename, e.job.ExportParent, err)
	}
	e.uploaded = true
	return nil
}

func (e *FileExporter) download(ctx context.Context, path string) error {
	f, err := e.fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.client.DownloadFile(ctx, e.job.OriginParent, e.job.OriginFilename, f); err != nil {
		return fmt.Errorf("failed to download %s: %w", e.job.OriginFilename, err)
	}
	return nil
}

// Status reads the destination back and returns the report row. An upload
// that is not visible at the destination counts as an error. A kept
// destination file is a success carrying the existing file id.
func (e *FileExporter) Status(ctx context.Context) models.ExportStatus {
	if e.state != models.JobError {
		dest, err := e.client.GetFile(ctx, e.job.ExportParent, e.job.ExportFilename)
		switch {
		case err != nil:
			e.Fail(fmt.Sprintf("failed to read back %s from %s: %v", e.job.ExportFilename, e.job.ExportParent, err))
		case dest != nil && (e.uploaded || e.exists):
			e.dest = dest
			e.state = models.JobSuccess
		case e.exists:
			e.Fail(fmt.Sprintf("%s is no longer present in %s", e.job.ExportFilename, e.job.ExportParent))
		case e.uploaded:
			e.Fail(fmt.Sprintf("%s was uploaded but is not present in %s", e.job.ExportFilename, e.job.ExportParent))
		}
	}

	job := e.job
	job.State = e.state
	job.Errors = e.errors
	status := job.Status()
	if e.dest != nil && e.state == models.JobSuccess {
		status.ExportFileID = e.dest.ID
	}
	return status
}
