/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RunStatus string

const (
	Running  RunStatus = "running"
	Complete RunStatus = "complete"
	Partial  RunStatus = "partial"
	Failed   RunStatus = "failed"
)

// ExportRun is the ledger entry of one invocation of the exporter.
type ExportRun struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	OriginContainer    string         `json:"origin_container"`
	OriginType         ContainerType  `gorm:"type:string" json:"origin_type"`
	DestinationProject string         `json:"destination_project"`
	Template           string         `json:"template"`
	ExportConfig       datatypes.JSON `gorm:"type:json" json:"export_config"`
	Status             RunStatus      `gorm:"type:string" json:"status"`
	ErrorCount         int            `json:"error_count"`
	Statuses           []FileStatus   `gorm:"foreignKey:RunID" json:"-"`
}

// FileStatus is one persisted report row.
type FileStatus struct {
	ID               uint      `gorm:"primarykey" json:"-"`
	RunID            uuid.UUID `gorm:"type:uuid;index" json:"run_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	OriginFilename   string    `json:"origin_filename"`
	OriginParent     string    `json:"origin_parent"`
	OriginParentType string    `json:"origin_parent_type"`
	ExportFilename   string    `json:"export_filename"`
	ExportFileID     string    `json:"export_file_id"`
	ExportParent     string    `json:"export_parent"`
	State            JobState  `gorm:"type:string" json:"state"`
	Errors           string    `json:"errors"`
}

func (er *ExportRun) BeforeCreate(tx *gorm.DB) error {
	if er.ID == uuid.Nil {
		er.ID = uuid.New()
	}
	if er.Status == "" {
		er.Status = Running
	}
	return nil
}

func (er *ExportRun) SetExportConfig(cfg *ExportConfig) error {
	out, err := json.Marshal(cfg)
	er.ExportConfig = out
	return err
}

func (er *ExportRun) GetExportConfig() (*ExportConfig, error) {
	var cfg ExportConfig
	if len(er.ExportConfig) == 0 {
		return &cfg, nil
	}
	err := json.Unmarshal(er.ExportConfig, &cfg)
	return &cfg, err
}

// FinalStatus derives the run status from its error count.
func FinalStatus(errorCount, total int) RunStatus {
	switch {
	case errorCount == 0:
		return Complete
	case errorCount < total:
		return Partial
	default:
		return Failed
	}
}

func NewFileStatus(runID uuid.UUID, s ExportStatus) FileStatus {
	return FileStatus{
		RunID:            runID,
		OriginFilename:   s.OriginFilename,
		OriginParent:     s.OriginParent,
		OriginParentType: s.OriginParentType,
		ExportFilename:   s.ExportFilename,
		ExportFileID:     s.ExportFileID,
		ExportParent:     s.ExportParent,
		State:            s.State,
		Errors:           s.Errors,
	}
}
