/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"github.com/redhatinsights/deid-export-go/models"
)

// InitializeFileJobs returns a pending job for every file of origin whose
// type is in fileTypes. remap renames files at the destination.
func InitializeFileJobs(origin, dest *models.Container, remap map[string]string, fileTypes []string, overwrite bool) []models.FileExportJob {
	allowed := make(map[string]struct{}, len(fileTypes))
	for _, t := range fileTypes {
		allowed[t] = struct{}{}
	}

	var jobs []models.FileExportJob
	for _, f := range origin.Files {
		if _, ok := allowed[f.Type]; !ok {
			continue
		}
		exportName := f.Name
		if renamed, ok := remap[f.Name]; ok && renamed != "" {
			exportName = renamed
		}
		jobs = append(jobs, models.FileExportJob{
			OriginParent:     origin.ID,
			OriginParentType: origin.Type,
			OriginFilename:   f.Name,
			ExportParent:     dest.ID,
			ExportFilename:   exportName,
			Overwrite:        overwrite,
			State:            models.JobPending,
		})
	}
	return jobs
}
