/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/deid"
	"github.com/redhatinsights/deid-export-go/logger"
	"github.com/redhatinsights/deid-export-go/store"
)

func createRootCommand(cfg *config.ExportConfig, log *zap.SugaredLogger) *cobra.Command {

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use:           "deid-export",
		Short:         "Export de-identified containers into a destination project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app := &exportApp{
		cfg:          cfg,
		log:          log,
		fs:           afero.NewOsFs(),
		clients:      store.Factory(cfg, log),
		deidentifier: deid.NewCommandDeidentifier(cfg.DeidCommand),
	}

	rootCmd.AddCommand(newExportCommand(app))
	rootCmd.AddCommand(newMigrateCommand(cfg, log))

	return rootCmd
}

func main() {
	cfg := config.ExportCfg
	log := logger.Log

	cmd := createRootCommand(cfg, log)
	if err := cmd.Execute(); err != nil {
		log.Errorw("deid-export failed", "error", err)
		_ = log.Sync()
		os.Exit(1)
	}
}
