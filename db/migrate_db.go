/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package db

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

type loggerWrapper struct {
	*zap.SugaredLogger
}

func (lw loggerWrapper) Verbose() bool {
	return true
}

func (lw loggerWrapper) Printf(format string, v ...interface{}) {
	lw.Infof(format, v...)
}

// PerformDbMigration applies the embedded ledger migrations in the given
// direction ("up" or "down" one step).
func PerformDbMigration(databaseConn *sql.DB, log *zap.SugaredLogger, direction string) error {
	log.Info("Starting deid export ledger migration")

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		log.Errorw("Unable to read embedded migrations", "error", err)
		return err
	}

	driver, err := postgres.WithInstance(databaseConn, &postgres.Config{})
	if err != nil {
		log.Errorw("Unable to get postgres driver from database connection", "error", err)
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		log.Errorw("Unable to intialize database migration util", "error", err)
		return err
	}

	m.Log = loggerWrapper{log}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		return errors.New("invalid operation")
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("DB migration resulted in no changes")
	} else if err != nil {
		log.Errorw("DB migration resulted in an error", "error", err)
		return err
	}

	return nil
}
