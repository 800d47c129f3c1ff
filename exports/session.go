/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// InitOptions selects which ancestor files travel with a session export.
type InitOptions struct {
	ProjectFiles bool
	SubjectFiles bool
	FilenameMap  map[string]string
}

// SessionExporter reconciles one origin session, its subject and its
// acquisitions into a destination project and exports their files.
type SessionExporter struct {
	client    store.Client
	matcher   *Matcher
	executor  *Executor
	export    *models.ExportConfig
	fileTypes []string
	overwrite bool
	log       *zap.SugaredLogger

	originSessionID string
	destProjectID   string
	destSessionID   string

	destSubject *models.Container
	dest        *models.Container
	jobs        []models.FileExportJob
}

// SessionExporterConfig carries the per-run settings of a SessionExporter.
// DestSessionID skips matching when the destination session is known.
type SessionExporterConfig struct {
	Export        *models.ExportConfig
	FileTypes     []string
	Overwrite     bool
	DestSessionID string
}

func NewSessionExporter(client store.Client, executor *Executor, originSessionID, destProjectID string, cfg SessionExporterConfig, log *zap.SugaredLogger) *SessionExporter {
	export := cfg.Export
	if export == nil {
		export = &models.ExportConfig{}
	}
	return &SessionExporter{
		client:          client,
		matcher:         NewMatcher(client, log),
		executor:        executor,
		export:          export,
		fileTypes:       cfg.FileTypes,
		overwrite:       cfg.Overwrite,
		log:             log.With("origin_session", originSessionID),
		originSessionID: originSessionID,
		destProjectID:   destProjectID,
		destSessionID:   cfg.DestSessionID,
	}
}

func (s *SessionExporter) origin(ctx context.Context) (*models.Container, error) {
	origin, err := s.client.GetSession(ctx, s.originSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load origin session %s: %w", s.originSessionID, err)
	}
	return origin, nil
}

func (s *SessionExporter) FindOrCreateDestSubject(ctx context.Context) (*models.Container, error) {
	if s.destSubject != nil {
		return s.destSubject, nil
	}
	if s.destSessionID != "" {
		dest, err := s.FindOrCreateDest(ctx)
		if err != nil {
			return nil, err
		}
		subject, err := s.client.Get(ctx, dest.Parents.Subject)
		if err != nil {
			return nil, err
		}
		s.destSubject = subject
		return subject, nil
	}

	origin, err := s.origin(ctx)
	if err != nil {
		return nil, err
	}
	subject, err := s.matcher.FindOrCreateSubject(ctx, origin.Parents.Subject, s.destProjectID, s.export.Subject)
	if err != nil {
		return nil, err
	}
	s.destSubject = subject
	return subject, nil
}

func (s *SessionExporter) FindOrCreateDest(ctx context.Context) (*models.Container, error) {
	if s.dest != nil {
		return s.dest, nil
	}
	if s.destSessionID != "" {
		dest, err := s.client.GetSession(ctx, s.destSessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load destination session %s: %w", s.destSessionID, err)
		}
		s.dest = dest
		return dest, nil
	}

	subject, err := s.FindOrCreateDestSubject(ctx)
	if err != nil {
		return nil, err
	}
	dest, err := s.matcher.FindOrCreateSession(ctx, s.originSessionID, subject.ID, s.export.Session)
	if err != nil {
		return nil, err
	}
	s.dest = dest
	return dest, nil
}

type acquisitionPair struct {
	origin *models.Container
	dest   *models.Container
}

// FindOrCreateAcquisitions reconciles every acquisition of the origin session.
func (s *SessionExporter) FindOrCreateAcquisitions(ctx context.Context) error {
	_, err := s.acquisitions(ctx)
	return err
}

func (s *SessionExporter) acquisitions(ctx context.Context) ([]acquisitionPair, error) {
	dest, err := s.FindOrCreateDest(ctx)
	if err != nil {
		return nil, err
	}
	origins, err := s.client.ListChildren(ctx, s.originSessionID, models.Acquisition)
	if err != nil {
		return nil, fmt.Errorf("failed to list acquisitions of %s: %w", s.originSessionID, err)
	}
	pairs := make([]acquisitionPair, 0, len(origins))
	for i := range origins {
		acq, err := s.matcher.FindOrCreateAcquisition(ctx, origins[i].ID, dest.ID, s.export.Acquisition)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, acquisitionPair{origin: &origins[i], dest: acq})
	}
	return pairs, nil
}

// InitializeFiles builds the file jobs in project, subject, session,
// acquisition order.
func (s *SessionExporter) InitializeFiles(ctx context.Context, opts InitOptions) ([]models.FileExportJob, error) {
	s.log.Debugw("initializing files", "project_files", opts.ProjectFiles, "subject_files", opts.SubjectFiles)
	dest, err := s.FindOrCreateDest(ctx)
	if err != nil {
		return nil, err
	}
	origin, err := s.origin(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []models.FileExportJob
	if opts.ProjectFiles {
		originProject, err := s.client.GetProject(ctx, origin.Parents.Project)
		if err != nil {
			return nil, err
		}
		destProject, err := s.client.GetProject(ctx, dest.Parents.Project)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, InitializeFileJobs(originProject, destProject, opts.FilenameMap, s.fileTypes, s.overwrite)...)
	}
	if opts.SubjectFiles {
		originSubject, err := s.client.Get(ctx, origin.Parents.Subject)
		if err != nil {
			return nil, err
		}
		destSubject, err := s.client.Get(ctx, dest.Parents.Subject)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, InitializeFileJobs(originSubject, destSubject, opts.FilenameMap, s.fileTypes, s.overwrite)...)
	}

	dest, err = s.client.GetSession(ctx, dest.ID)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, InitializeFileJobs(origin, dest, opts.FilenameMap, s.fileTypes, s.overwrite)...)

	pairs, err := s.acquisitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		jobs = append(jobs, InitializeFileJobs(pair.origin, pair.dest, opts.FilenameMap, s.fileTypes, s.overwrite)...)
	}

	s.jobs = append(s.jobs, jobs...)
	return jobs, nil
}

// Jobs returns the jobs initialized so far.
func (s *SessionExporter) Jobs() []models.FileExportJob {
	return append([]models.FileExportJob(nil), s.jobs...)
}

// Export runs the initialized jobs with the profile at templatePath.
func (s *SessionExporter) Export(ctx context.Context, templatePath string) *Report {
	report := NewReport(s.executor.Run(ctx, s.Jobs(), templatePath)...)
	if report.Len() > 0 && report.ErrorCount() == report.Len() {
		s.log.Errorw("failed to export all session files, check the template", "template", templatePath)
	}
	return report
}
