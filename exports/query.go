/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/store"
)

// QuoteNumeric renders a value for the store's query language. Strings that
// look like numbers are wrapped in double quotes so the store compares them
// as strings.
func QuoteNumeric(v interface{}, log *zap.SugaredLogger) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
		log.Warnw("coercing non-string query value", "value", s, "type", fmt.Sprintf("%T", v))
	}
	if store.IsNumeric(s) {
		return fmt.Sprintf(`"%s"`, s)
	}
	return s
}

// Filter builds a comma-joined field=value expression.
type Filter struct {
	terms []string
	log   *zap.SugaredLogger
}

func NewFilter(log *zap.SugaredLogger) *Filter {
	return &Filter{log: log}
}

// Eq adds a term whose value is quoted only when it looks numeric.
func (f *Filter) Eq(field string, value interface{}) *Filter {
	f.terms = append(f.terms, fmt.Sprintf("%s=%s", field, QuoteNumeric(value, f.log)))
	return f
}

// EqQuoted adds a term whose value is always quoted.
func (f *Filter) EqQuoted(field, value string) *Filter {
	f.terms = append(f.terms, fmt.Sprintf(`%s="%s"`, field, value))
	return f
}

func (f *Filter) String() string {
	return strings.Join(f.terms, ",")
}
