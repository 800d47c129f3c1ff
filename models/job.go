/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package models

import "strings"

type JobState string

const (
	JobPending JobState = "pending"
	JobSuccess JobState = "success"
	JobError   JobState = "error"
)

// FileExportJob describes one file to de-identify and transfer. It only
// carries ids so it can be handed to any worker.
type FileExportJob struct {
	OriginParent     string        `json:"origin_parent"`
	OriginParentType ContainerType `json:"origin_parent_type"`
	OriginFilename   string        `json:"origin_filename"`
	ExportParent     string        `json:"export_parent"`
	ExportFilename   string        `json:"export_filename"`
	Overwrite        bool          `json:"overwrite"`
	State            JobState      `json:"state"`
	Errors           []string      `json:"errors,omitempty"`
}

// Failed returns a copy of the job moved to the error state.
func (j FileExportJob) Failed(msg string) FileExportJob {
	j.State = JobError
	j.Errors = append(append([]string(nil), j.Errors...), msg)
	return j
}

// Status converts the job into a report row without an export file id.
func (j FileExportJob) Status() ExportStatus {
	return ExportStatus{
		OriginFilename:   j.OriginFilename,
		OriginParent:     j.OriginParent,
		OriginParentType: string(j.OriginParentType),
		ExportFilename:   j.ExportFilename,
		ExportParent:     j.ExportParent,
		State:            j.State,
		Errors:           strings.Join(j.Errors, "\t"),
	}
}

// ReportColumns is the fixed column order of the persisted report.
var ReportColumns = []string{
	"origin_filename",
	"origin_parent",
	"origin_parent_type",
	"export_filename",
	"export_file_id",
	"export_parent",
	"state",
	"errors",
}

// ExportStatus is the status snapshot of one file export and one report row.
type ExportStatus struct {
	OriginFilename   string   `json:"origin_filename"`
	OriginParent     string   `json:"origin_parent"`
	OriginParentType string   `json:"origin_parent_type"`
	ExportFilename   string   `json:"export_filename"`
	ExportFileID     string   `json:"export_file_id"`
	ExportParent     string   `json:"export_parent"`
	State            JobState `json:"state"`
	Errors           string   `json:"errors"`
}

// Record returns the row in ReportColumns order.
func (s ExportStatus) Record() []string {
	return []string{
		s.OriginFilename,
		s.OriginParent,
		s.OriginParentType,
		s.ExportFilename,
		s.ExportFileID,
		s.ExportParent,
		string(s.State),
		s.Errors,
	}
}
