/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package template

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/models"
)

const exportKey = "export"

// Template is a parsed de-identification profile. The export block drives
// container matching; the remaining keys are handed to the de-identifier.
type Template struct {
	Path    string
	Profile map[string]interface{}
}

// Load reads a YAML or JSON template. JSON is selected by the .json
// extension.
func Load(fs afero.Fs, path string) (*Template, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.New(errors.TemplateLoadError, "load template", err)
	}
	profile := map[string]interface{}{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &profile)
	} else {
		err = yaml.Unmarshal(data, &profile)
	}
	if err != nil {
		return nil, errors.Newf(errors.TemplateLoadError, "load template", "failed to parse %s: %v", path, err)
	}
	if profile == nil {
		return nil, errors.Newf(errors.TemplateLoadError, "load template", "template %s is empty", path)
	}
	t := &Template{Path: path, Profile: profile}
	if _, err := t.ExportConfig(); err != nil {
		return nil, err
	}
	return t, nil
}

// ExportConfig decodes the export block. A template without one yields an
// empty config.
func (t *Template) ExportConfig() (*models.ExportConfig, error) {
	section, ok := t.Profile[exportKey]
	if !ok || section == nil {
		return &models.ExportConfig{}, nil
	}
	raw, err := yaml.Marshal(section)
	if err != nil {
		return nil, errors.New(errors.TemplateLoadError, "decode export config", err)
	}
	cfg := &models.ExportConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.New(errors.TemplateLoadError, "decode export config", err)
	}
	return cfg, nil
}

// Write serialises the profile as YAML.
func (t *Template) Write(fs afero.Fs, path string) error {
	raw, err := yaml.Marshal(t.Profile)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, raw, 0o644)
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	return &Template{Path: t.Path, Profile: models.CopyValue(t.Profile).(map[string]interface{})}
}
