/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package s3

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redhatinsights/deid-export-go/models"
)

/**
 * Code for making the README.md and meta.json files included in the run archive.
 */

// struct used to fill the README.md and meta.json files in the archive
type ExportMeta struct {
	RunID         string           `json:"run_id"`
	ExportDate    string           `json:"export_date"`
	ContainerType string           `json:"container_type"`
	ContainerID   string           `json:"container_id"`
	DestProjectID string           `json:"dest_project_id"`
	Template      string           `json:"template"`
	Report        string           `json:"report"`
	FileMeta      []ExportFileMeta `json:"file_meta"`
	HelpString    string           `json:"help_string"`
	FailedFiles   []FailedFileMeta `json:"failed_files"`
}

// details for each exported file
type ExportFileMeta struct {
	Filename     string `json:"filename"`
	OriginParent string `json:"origin_parent"`
	ExportParent string `json:"export_parent"`
	ExportFileID string `json:"export_file_id"`
}

// details for each file that failed to export
type FailedFileMeta struct {
	Filename     string `json:"filename"`
	OriginParent string `json:"origin_parent"`
	Error        string `json:"error"`
}

const (
	helpString = `Contained in this archive is the report of a de-identified export run. Each row of the report describes one file transfer.`
)

// NewExportMeta splits the report rows into exported and failed files.
func NewExportMeta(runID uuid.UUID, containerType, containerID, destProjectID, template, report string, rows []models.ExportStatus, now time.Time) *ExportMeta {
	meta := &ExportMeta{
		RunID:         runID.String(),
		ExportDate:    now.UTC().Format(time.RFC3339),
		ContainerType: containerType,
		ContainerID:   containerID,
		DestProjectID: destProjectID,
		Template:      template,
		Report:        report,
		HelpString:    helpString,
	}
	for _, row := range rows {
		if row.State == models.JobSuccess {
			meta.FileMeta = append(meta.FileMeta, ExportFileMeta{
				Filename:     row.ExportFilename,
				OriginParent: row.OriginParent,
				ExportParent: row.ExportParent,
				ExportFileID: row.ExportFileID,
			})
			continue
		}
		meta.FailedFiles = append(meta.FailedFiles, FailedFileMeta{
			Filename:     row.OriginFilename,
			OriginParent: row.OriginParent,
			Error:        row.Errors,
		})
	}
	return meta
}

func BuildMeta(meta *ExportMeta) ([]byte, error) {
	// make a json file from the ExportMeta struct
	metaJSON, err := json.Marshal(meta)

	return metaJSON, err
}

func BuildReadme(meta *ExportMeta) (string, error) {
	dataDetails := ""
	for _, file := range meta.FileMeta {
		dataDetails += fmt.Sprintf(`
### %s
- **Origin parent**: %s
- **Export parent**: %s
- **Export file id**: %s
`, file.Filename, file.OriginParent, file.ExportParent, file.ExportFileID)
	}

	if dataDetails == "" {
		dataDetails = `
No files were exported.
`
	}

	failedFiles := ""
	for _, file := range meta.FailedFiles {
		failedFiles += fmt.Sprintf(`
### %s
- **Origin parent**: %s
- **Error**: %s
`, file.Filename, file.OriginParent, file.Error)
	}

	if failedFiles == "" {
		failedFiles = `
No files failed.
`
	}

	// next, make a README.md file containing the ExportMeta data in a readable format
	readme := fmt.Sprintf(`# Export Manifest

## Export Run
- **Run ID**: %s
- **Container**: %s %s
- **Destination project**: %s
- **Template**: %s
- **Export Date**: %s

## Exported Files
The report %s lists every file of this run.
%s
## Failed Files
%s
## Help and Support
%s
`,
		meta.RunID,
		meta.ContainerType,
		meta.ContainerID,
		meta.DestProjectID,
		meta.Template,
		meta.ExportDate,
		meta.Report,
		dataDetails,
		failedFiles,
		meta.HelpString,
	)

	return readme, nil
}
