/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package db

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/models"
)

func OpenDB(cfg config.ExportConfig) (*gorm.DB, error) {
	dsn := buildPostgresDSN(cfg)
	gormCfg := &gorm.Config{}
	if !cfg.Debug {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return gorm.Open(postgres.Open(dsn), gormCfg)
}

func OpenPostgresDB(cfg config.ExportConfig) (*sql.DB, error) {
	dsn := buildPostgresDSN(cfg)
	return sql.Open("postgres", dsn)
}

// OpenLedger connects to the run ledger and brings its schema up to date.
func OpenLedger(cfg config.ExportConfig, log *zap.SugaredLogger) (*models.ExportDB, error) {
	sqlDB, err := OpenPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger connection: %w", err)
	}
	defer sqlDB.Close()

	if err := PerformDbMigration(sqlDB, log, "up"); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	gdb, err := OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return &models.ExportDB{DB: gdb}, nil
}

func buildPostgresDSN(cfg config.ExportConfig) string {
	dbcfg := cfg.DBConfig

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbcfg.User,
		dbcfg.Password,
		dbcfg.Hostname,
		dbcfg.Port,
		dbcfg.Name,
		dbcfg.SSLCfg.SSLMode)

	if dbcfg.SSLCfg.RdsCa != nil && *dbcfg.SSLCfg.RdsCa != "" {
		dsn += fmt.Sprintf("&sslrootcert=%s", *dbcfg.SSLCfg.RdsCa)
	}

	return dsn
}
