/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/redhatinsights/deid-export-go/models"
)

var numericValue = regexp.MustCompile(`^\d+\.?\d*$`)

// IsNumeric reports whether an unquoted filter value is read as a number.
// Only plain digits with an optional decimal point qualify.
func IsNumeric(s string) bool {
	return numericValue.MatchString(s)
}

// Condition is one field=value term of a filter expression. Quoted values
// compare as strings; unquoted values compare as numbers only when
// IsNumeric holds.
type Condition struct {
	Field  string
	Value  string
	Quoted bool
}

// ParseFilter splits a comma-joined filter expression into its conditions.
// Commas inside double quotes do not split.
func ParseFilter(expr string) ([]Condition, error) {
	var terms []string
	var current strings.Builder
	inQuotes := false
	for _, r := range expr {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			terms = append(terms, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quote in filter '%s'", expr)
	}
	terms = append(terms, current.String())

	conditions := make([]Condition, 0, len(terms))
	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		field, value, ok := strings.Cut(term, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("filter term '%s' is not of the form field=value", term)
		}
		cond := Condition{Field: strings.TrimSpace(field), Value: value}
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			cond.Value = value[1 : len(value)-1]
			cond.Quoted = true
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

// Matches reports whether every condition holds for c.
func Matches(c *models.Container, conditions []Condition) bool {
	for _, cond := range conditions {
		if !cond.matches(lookupField(c, cond.Field)) {
			return false
		}
	}
	return true
}

func (cond Condition) matches(actual interface{}) bool {
	if actual == nil {
		return false
	}
	if !cond.Quoted && IsNumeric(cond.Value) {
		if want, err := strconv.ParseFloat(cond.Value, 64); err == nil {
			switch v := actual.(type) {
			case int:
				return float64(v) == want
			case int64:
				return float64(v) == want
			case float64:
				return v == want
			}
			// a number never equals a string
			return false
		}
	}
	s, ok := actual.(string)
	return ok && s == cond.Value
}

func lookupField(c *models.Container, field string) interface{} {
	switch field {
	case "_id", "id":
		return c.ID
	case "label":
		return c.Label
	case "code":
		return c.Code
	}
	parts := strings.Split(field, ".")
	var current interface{}
	if parts[0] == "info" {
		current = c.Info
		parts = parts[1:]
	} else {
		current = c.Fields
	}
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
