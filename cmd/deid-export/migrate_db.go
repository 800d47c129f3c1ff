/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/db"
)

func newMigrateCommand(cfg *config.ExportConfig, log *zap.SugaredLogger) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate_db [up|down]",
		Short:     "Migrate the export run ledger",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return performDbMigration(cfg, log, args[0])
		},
	}
}

func performDbMigration(cfg *config.ExportConfig, log *zap.SugaredLogger, direction string) error {
	sqlDB, err := db.OpenPostgresDB(*cfg)
	if err != nil {
		log.Errorw("Unable to initialize database connection", "error", err)
		return err
	}
	defer sqlDB.Close()

	if err := db.PerformDbMigration(sqlDB, log, direction); err != nil {
		return fmt.Errorf("ledger migration %s failed: %w", direction, err)
	}
	return nil
}
