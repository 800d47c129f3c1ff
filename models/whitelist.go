/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/redhatinsights/deid-export-go/errors"
)

// MetadataWhitelist is the fixed set of top-level fields that may ever be
// copied to a destination container of each type.
var MetadataWhitelist = map[ContainerType][]string{
	Project:     {},
	Subject:     {"firstname", "lastname", "sex", "cohort", "ethnicity", "race", "species", "strain"},
	Session:     {"age", "operator", "timestamp", "timezone", "uid", "weight"},
	Acquisition: {"timestamp", "timezone", "uid"},
}

// AllowedField reports whether field is in the fixed whitelist of t.
func AllowedField(t ContainerType, field string) bool {
	for _, f := range MetadataWhitelist[t] {
		if f == field {
			return true
		}
	}
	return false
}

const whitelistAll = "all"

// WhitelistSpec selects fields either explicitly or with the "all" marker.
// The zero value is an explicit empty list.
type WhitelistSpec struct {
	All    bool
	Fields []string
}

func WhitelistAll() WhitelistSpec { return WhitelistSpec{All: true} }

func WhitelistOf(fields ...string) WhitelistSpec { return WhitelistSpec{Fields: fields} }

// Includes reports whether name is selected.
func (w WhitelistSpec) Includes(name string) bool {
	if w.All {
		return true
	}
	for _, f := range w.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Resolve expands All to the given table; an explicit list is returned as is.
func (w WhitelistSpec) Resolve(all []string) []string {
	if w.All {
		return append([]string(nil), all...)
	}
	return append([]string(nil), w.Fields...)
}

func (w *WhitelistSpec) fromValue(v interface{}) error {
	switch val := v.(type) {
	case nil:
		*w = WhitelistSpec{}
		return nil
	case string:
		if strings.EqualFold(val, whitelistAll) {
			*w = WhitelistAll()
			return nil
		}
		return errors.Newf(errors.InvalidWhitelist, "decode whitelist", "'%s' is not a valid whitelist, expected a list of fields or '%s'", val, whitelistAll)
	case []interface{}:
		fields := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return errors.Newf(errors.InvalidWhitelist, "decode whitelist", "whitelist entry %v is a %T, not a string", item, item)
			}
			fields = append(fields, s)
		}
		*w = WhitelistOf(fields...)
		return nil
	}
	return errors.Newf(errors.InvalidWhitelist, "decode whitelist", "whitelist of type %T is not supported", v)
}

func (w *WhitelistSpec) UnmarshalYAML(value *yaml.Node) error {
	var v interface{}
	if err := value.Decode(&v); err != nil {
		return errors.New(errors.InvalidWhitelist, "decode whitelist", err)
	}
	return w.fromValue(v)
}

func (w *WhitelistSpec) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.New(errors.InvalidWhitelist, "decode whitelist", err)
	}
	return w.fromValue(v)
}

func (w WhitelistSpec) MarshalYAML() (interface{}, error) {
	if w.All {
		return whitelistAll, nil
	}
	return w.Fields, nil
}

func (w WhitelistSpec) MarshalJSON() ([]byte, error) {
	if w.All {
		return json.Marshal(whitelistAll)
	}
	if w.Fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w.Fields)
}

func (w WhitelistSpec) String() string {
	if w.All {
		return whitelistAll
	}
	return fmt.Sprintf("%v", w.Fields)
}

// Whitelist pairs the top-level metadata selection with the info selection.
type Whitelist struct {
	Metadata WhitelistSpec `yaml:"metadata" json:"metadata"`
	Info     WhitelistSpec `yaml:"info" json:"info"`
}

// ContainerConfig is the per container type section of a template's export
// block.
type ContainerConfig struct {
	Code      string    `yaml:"code,omitempty" json:"code,omitempty"`
	Label     string    `yaml:"label,omitempty" json:"label,omitempty"`
	Whitelist Whitelist `yaml:"whitelist" json:"whitelist"`
}

// ExportConfig is the export block of a de-identification template.
type ExportConfig struct {
	Subject     *ContainerConfig `yaml:"subject,omitempty" json:"subject,omitempty"`
	Session     *ContainerConfig `yaml:"session,omitempty" json:"session,omitempty"`
	Acquisition *ContainerConfig `yaml:"acquisition,omitempty" json:"acquisition,omitempty"`
	FileTypes   []string         `yaml:"file_types,omitempty" json:"file_types,omitempty"`
}

// For returns the config of a container type, or nil.
func (c *ExportConfig) For(t ContainerType) *ContainerConfig {
	if c == nil {
		return nil
	}
	switch t {
	case Subject:
		return c.Subject
	case Session:
		return c.Session
	case Acquisition:
		return c.Acquisition
	}
	return nil
}
