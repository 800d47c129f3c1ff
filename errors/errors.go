/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an export failure so callers can decide whether it aborts
// the enclosing scope or is downgraded to report rows.
type Kind string

const (
	MissingIdentifier        Kind = "missing_identifier"
	TemplateLoadError        Kind = "template_load_error"
	TemplateDerivationError  Kind = "template_derivation_error"
	UnsupportedContainerType Kind = "unsupported_container_type"
	FileExportError          Kind = "file_export_error"
	InvalidWhitelist         Kind = "invalid_whitelist"
)

// ExportError is the error type returned by the export packages.
type ExportError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the operation that failed. A nil err is
// replaced by a generic message so the kind is never lost.
func New(kind Kind, op string, err error) error {
	if err == nil {
		err = stderrors.New(string(kind))
	}
	return &ExportError{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, op string, format string, args ...interface{}) error {
	return &ExportError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain is an ExportError of kind.
func IsKind(err error, kind Kind) bool {
	var e *ExportError
	if stderrors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		return IsKind(e.Err, kind)
	}
	return false
}

// KindOf returns the kind of the outermost ExportError in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *ExportError
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
