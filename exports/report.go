/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// Report accumulates export status rows and appends them to a CSV file. Rows
// are written once; repeated flushes only write rows appended since the last
// flush. Writers from separate runs sharing a path are not coordinated.
type Report struct {
	mu            sync.Mutex
	rows          []models.ExportStatus
	flushed       int
	headerWritten bool
}

func NewReport(rows ...models.ExportStatus) *Report {
	r := &Report{}
	r.Append(rows...)
	return r
}

func (r *Report) Append(rows ...models.ExportStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
}

func (r *Report) Rows() []models.ExportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ExportStatus(nil), r.rows...)
}

func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *Report) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.State == models.JobError {
			count++
		}
	}
	return count
}

// HeaderWritten reports whether this report has put a header in its file.
func (r *Report) HeaderWritten() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headerWritten
}

// Flush appends the unwritten rows to path. The header is written only when
// this report has not written one and the file does not exist yet.
func (r *Report) Flush(fs afero.Fs, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.rows[r.flushed:]
	if len(pending) == 0 {
		return nil
	}

	writeHeader := false
	if !r.headerWritten {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return err
		}
		writeHeader = !exists
	}

	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(models.ReportColumns); err != nil {
			return err
		}
	}
	for _, row := range pending {
		if err := w.Write(row.Record()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}

	r.headerWritten = true
	r.flushed = len(r.rows)
	return nil
}

// SessionErrorRows lists the files a session export would have covered as
// error rows carrying msg. Nothing is exported.
func SessionErrorRows(ctx context.Context, client store.Client, sessionID, msg string, fileTypes []string, projectFiles, subjectFiles bool) ([]models.ExportStatus, error) {
	session, err := client.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	allowed := make(map[string]struct{}, len(fileTypes))
	for _, t := range fileTypes {
		allowed[t] = struct{}{}
	}
	var rows []models.ExportStatus
	appendRows := func(c *models.Container) {
		for _, f := range c.Files {
			if _, ok := allowed[f.Type]; !ok {
				continue
			}
			rows = append(rows, models.ExportStatus{
				OriginFilename:   f.Name,
				OriginParent:     c.ID,
				OriginParentType: string(c.Type),
				State:            models.JobError,
				Errors:           msg,
			})
		}
	}

	if projectFiles {
		project, err := client.GetProject(ctx, session.Parents.Project)
		if err != nil {
			return nil, fmt.Errorf("failed to load project %s: %w", session.Parents.Project, err)
		}
		appendRows(project)
	}
	if subjectFiles {
		subject, err := client.Get(ctx, session.Parents.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to load subject %s: %w", session.Parents.Subject, err)
		}
		appendRows(subject)
	}
	appendRows(session)

	acquisitions, err := client.ListChildren(ctx, session.ID, models.Acquisition)
	if err != nil {
		return nil, fmt.Errorf("failed to list acquisitions of %s: %w", session.ID, err)
	}
	for i := range acquisitions {
		appendRows(&acquisitions[i])
	}
	return rows, nil
}
