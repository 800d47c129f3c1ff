/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExportDB struct {
	DB *gorm.DB
}

type DBInterface interface {
	CreateRun(run *ExportRun) (*ExportRun, error)
	GetRun(runID uuid.UUID) (*ExportRun, error)
	FinishRun(runID uuid.UUID, errorCount int) error
	RecordStatuses(ctx context.Context, runID uuid.UUID, statuses []ExportStatus) error
	ListStatuses(runID uuid.UUID) ([]FileStatus, error)
}

var ErrRecordNotFound = errors.New("record not found")

func (em *ExportDB) CreateRun(run *ExportRun) (*ExportRun, error) {
	if err := em.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (em *ExportDB) GetRun(runID uuid.UUID) (*ExportRun, error) {
	var result ExportRun
	err := em.DB.Model(&ExportRun{}).Where(&ExportRun{ID: runID}).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	return &result, err
}

// FinishRun stamps the completion time and derives the final status from the
// rows recorded for the run.
func (em *ExportDB) FinishRun(runID uuid.UUID, errorCount int) error {
	var total int64
	if err := em.DB.Model(&FileStatus{}).Where(&FileStatus{RunID: runID}).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count statuses: %w", err)
	}
	now := time.Now()
	result := em.DB.Model(&ExportRun{ID: runID}).Updates(map[string]interface{}{
		"completed_at": &now,
		"error_count":  errorCount,
		"status":       FinalStatus(errorCount, int(total)),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RecordStatuses appends report rows to the run's ledger.
func (em *ExportDB) RecordStatuses(ctx context.Context, runID uuid.UUID, statuses []ExportStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	rows := make([]FileStatus, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, NewFileStatus(runID, s))
	}
	return em.DB.WithContext(ctx).Create(&rows).Error
}

func (em *ExportDB) ListStatuses(runID uuid.UUID) ([]FileStatus, error) {
	var result []FileStatus
	err := em.DB.Model(&FileStatus{}).Where(&FileStatus{RunID: runID}).Order("id asc").Find(&result).Error
	return result, err
}
