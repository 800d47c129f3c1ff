/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package template

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/models"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SubjectMapping holds the per-subject template values read from a CSV. Each
// row is keyed by the origin subject code; every other column is a dotted
// path into the template.
type SubjectMapping struct {
	CodeColumn    string
	NewCodeColumn string
	Columns       []string
	rows          map[string]map[string]string
	codes         []string
}

// LoadSubjectMapping reads the CSV at path. Empty cells are dropped so they
// leave the template value alone.
func LoadSubjectMapping(fs afero.Fs, path, codeColumn, newCodeColumn string) (*SubjectMapping, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.New(errors.TemplateLoadError, "load subject mapping", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Newf(errors.TemplateLoadError, "load subject mapping", "failed to parse %s: %v", path, err)
	}
	if len(records) == 0 {
		return nil, errors.Newf(errors.TemplateLoadError, "load subject mapping", "%s has no header", path)
	}

	m := &SubjectMapping{
		CodeColumn:    codeColumn,
		NewCodeColumn: newCodeColumn,
		rows:          map[string]map[string]string{},
	}
	for _, col := range records[0] {
		m.Columns = append(m.Columns, strings.TrimSpace(col))
	}
	codeIdx := m.columnIndex(codeColumn)
	if codeIdx < 0 {
		return nil, errors.Newf(errors.TemplateLoadError, "load subject mapping", "column %s is missing from %s", codeColumn, path)
	}

	for _, record := range records[1:] {
		code := record[codeIdx]
		if _, dup := m.rows[code]; dup {
			return nil, errors.Newf(errors.TemplateLoadError, "load subject mapping", "%s is not unique in %s: %s appears more than once", codeColumn, path, code)
		}
		row := map[string]string{}
		for i, value := range record {
			if i == codeIdx || value == "" {
				continue
			}
			row[m.Columns[i]] = value
		}
		m.rows[code] = row
		m.codes = append(m.codes, code)
	}
	return m, nil
}

func (m *SubjectMapping) columnIndex(name string) int {
	for i, col := range m.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Codes returns the origin subject codes in file order.
func (m *SubjectMapping) Codes() []string {
	return append([]string(nil), m.codes...)
}

// Row returns the template updates for a subject.
func (m *SubjectMapping) Row(code string) (map[string]string, bool) {
	row, ok := m.rows[code]
	return row, ok
}

// ValidateMapping checks the mapping against a template. New subject codes
// must be unique; columns that do not address anything in the template are
// only logged.
func ValidateMapping(t *Template, m *SubjectMapping, log *zap.SugaredLogger) error {
	if m.NewCodeColumn != "" && m.columnIndex(m.NewCodeColumn) >= 0 {
		seen := map[string]string{}
		for _, code := range m.codes {
			newCode, ok := m.rows[code][m.NewCodeColumn]
			if !ok {
				continue
			}
			if other, dup := seen[newCode]; dup {
				return errors.Newf(errors.TemplateLoadError, "validate subject mapping",
					"subjects %s and %s map to the same new code %s", other, code, newCode)
			}
			seen[newCode] = code
		}
	}

	for _, col := range m.Columns {
		if col == m.CodeColumn || col == m.NewCodeColumn {
			continue
		}
		tgt, ok := resolve(t.Profile, col)
		if !ok || !tgt.exists() {
			log.Warnw("subject mapping column not found in template", "column", col)
		}
	}
	return nil
}

// Derive writes the template specialised for one subject to
// <dir>/deid_<code>.yaml and returns its path. The file always lands
// directly in dir whatever the code contains.
func Derive(t *Template, m *SubjectMapping, subjectCode string, fs afero.Fs, dir string, log *zap.SugaredLogger) (string, error) {
	row, ok := m.Row(subjectCode)
	if !ok {
		return "", errors.Newf(errors.TemplateDerivationError, "derive template", "subject %s is not in the subject mapping", subjectCode)
	}

	derived := t.Clone()
	for col, value := range row {
		if col == m.NewCodeColumn {
			setSubjectCode(derived.Profile, value)
			continue
		}
		tgt, ok := resolve(derived.Profile, col)
		if !ok || !tgt.exists() {
			log.Infow("subject mapping column did not match anything in template", "column", col, "subject", subjectCode)
			continue
		}
		if err := tgt.set(value); err != nil {
			return "", errors.Newf(errors.TemplateDerivationError, "derive template", "subject %s column %s: %v", subjectCode, col, err)
		}
	}

	path := filepath.Join(dir, derivedFileName(subjectCode))
	if err := derived.Write(fs, path); err != nil {
		return "", errors.New(errors.TemplateDerivationError, "derive template", err)
	}
	return path, nil
}

// derivedFileName keeps codes that are safe file names as they are. Other
// codes have their unsafe characters replaced and a hash of the code
// appended so distinct codes never share a file.
func derivedFileName(subjectCode string) string {
	name := unsafeNameChars.ReplaceAllString(subjectCode, "_")
	if name != subjectCode || name == "" || strings.Trim(name, ".") == "" {
		name = fmt.Sprintf("%s_%s", name, models.HashOriginID(subjectCode)[:8])
	}
	return fmt.Sprintf("deid_%s.yaml", name)
}

func setSubjectCode(profile map[string]interface{}, code string) {
	export, ok := profile[exportKey].(map[string]interface{})
	if !ok {
		export = map[string]interface{}{}
		profile[exportKey] = export
	}
	subject, ok := export["subject"].(map[string]interface{})
	if !ok {
		subject = map[string]interface{}{}
		export["subject"] = subject
	}
	subject["code"] = code
}
