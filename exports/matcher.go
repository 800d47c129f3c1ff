/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/metrics"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// Matcher finds the destination counterpart of an origin container, creating
// it when absent, so repeated exports converge on the same destination tree.
type Matcher struct {
	client store.Client
	log    *zap.SugaredLogger
}

func NewMatcher(client store.Client, log *zap.SugaredLogger) *Matcher {
	return &Matcher{client: client, log: log}
}

// FindOrCreateSubject matches on the effective subject code alone since codes
// are unique within a project.
func (m *Matcher) FindOrCreateSubject(ctx context.Context, originID, destProjectID string, cfg *models.ContainerConfig) (*models.Container, error) {
	origin, err := m.reload(ctx, originID, destProjectID)
	if err != nil {
		return nil, err
	}
	code := origin.Code
	if cfg != nil && cfg.Code != "" {
		code = cfg.Code
	}
	filter := NewFilter(m.log).Eq("code", code)
	return m.findOrCreate(ctx, origin, destProjectID, models.Subject, cfg, filter, map[string]interface{}{
		"code":  code,
		"label": code,
	})
}

func (m *Matcher) FindOrCreateSession(ctx context.Context, originID, destSubjectID string, cfg *models.ContainerConfig) (*models.Container, error) {
	return m.findOrCreateLabeled(ctx, originID, destSubjectID, models.Session, cfg)
}

func (m *Matcher) FindOrCreateAcquisition(ctx context.Context, originID, destSessionID string, cfg *models.ContainerConfig) (*models.Container, error) {
	return m.findOrCreateLabeled(ctx, originID, destSessionID, models.Acquisition, cfg)
}

// findOrCreateLabeled matches on the effective label and the origin id hash,
// as labels alone are not unique under a parent.
func (m *Matcher) findOrCreateLabeled(ctx context.Context, originID, destParentID string, t models.ContainerType, cfg *models.ContainerConfig) (*models.Container, error) {
	origin, err := m.reload(ctx, originID, destParentID)
	if err != nil {
		return nil, err
	}
	label := origin.Label
	if cfg != nil && cfg.Label != "" {
		label = cfg.Label
	}
	filter := NewFilter(m.log).
		Eq("label", label).
		EqQuoted(OriginIDPath, models.HashOriginID(origin.ID))
	return m.findOrCreate(ctx, origin, destParentID, t, cfg, filter, map[string]interface{}{
		"label": label,
	})
}

func (m *Matcher) reload(ctx context.Context, originID, destParentID string) (*models.Container, error) {
	origin, err := m.client.Get(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("failed to load origin container %s: %w", originID, err)
	}
	if _, err := m.client.Get(ctx, destParentID); err != nil {
		return nil, fmt.Errorf("failed to load destination container %s: %w", destParentID, err)
	}
	return origin, nil
}

func (m *Matcher) findOrCreate(ctx context.Context, origin *models.Container, destParentID string, t models.ContainerType, cfg *models.ContainerConfig, filter *Filter, identity map[string]interface{}) (*models.Container, error) {
	meta, err := BuildMetadata(origin, t, cfg)
	if err != nil {
		return nil, err
	}

	existing, err := m.client.FindFirst(ctx, destParentID, t, filter.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s under %s: %w", t, destParentID, err)
	}

	if existing == nil {
		fields := meta
		for k, v := range identity {
			fields[k] = v
		}
		id, err := m.client.AddChild(ctx, destParentID, t, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s under %s: %w", t, destParentID, err)
		}
		metrics.IncContainer(string(t), "created")
		m.log.Infow("created destination container", "type", t, "origin_id", origin.ID, "id", id)
		return m.client.Get(ctx, id)
	}

	if err := m.client.UpdateMetadata(ctx, existing.ID, meta); err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", t, existing.ID, err)
	}
	metrics.IncContainer(string(t), "updated")
	m.log.Debugw("updated destination container", "type", t, "origin_id", origin.ID, "id", existing.ID)
	return m.client.Get(ctx, existing.ID)
}
