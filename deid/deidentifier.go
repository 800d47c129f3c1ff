/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package deid

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/afero"
)

// Deidentifier applies a de-identification profile to one file. Paths are
// resolved on fs.
type Deidentifier interface {
	Deidentify(ctx context.Context, fs afero.Fs, profilePath, inputPath, outputPath string) error
}

// CommandDeidentifier shells out to an external de-identification tool:
//
//	<command> [args...] --profile <profile> --input <input> --output <output>
//
// The tool reads and writes the real filesystem, so it must be paired with an
// afero.OsFs.
type CommandDeidentifier struct {
	Command string
	Args    []string
}

func NewCommandDeidentifier(command string) *CommandDeidentifier {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &CommandDeidentifier{}
	}
	return &CommandDeidentifier{Command: fields[0], Args: fields[1:]}
}

func (d *CommandDeidentifier) Deidentify(ctx context.Context, fs afero.Fs, profilePath, inputPath, outputPath string) error {
	if d.Command == "" {
		return fmt.Errorf("no de-identification command configured")
	}
	if _, ok := fs.(*afero.OsFs); !ok {
		return fmt.Errorf("%s needs the OS filesystem, got %s", d.Command, fs.Name())
	}
	args := append(append([]string(nil), d.Args...),
		"--profile", profilePath,
		"--input", inputPath,
		"--output", outputPath,
	)
	cmd := exec.CommandContext(ctx, d.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", d.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
