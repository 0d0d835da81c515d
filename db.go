package main

import (
	"errors"
	"fmt"
	"log/slog"

	"fireshot/pkg/config"
	"fireshot/pkg/store"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database.dsn is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// openStore returns the user record store selected by database.driver.
// Postgres tables are migrated on open unless database.auto_migrate is off;
// migration failures are logged and do not prevent startup.
func openStore(cfg config.DatabaseConfig, log *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := openDB(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := store.Migrate(db, log); err != nil {
				log.Warn("migration incomplete", slog.String("error", err.Error()))
			}
		}
		return store.NewGorm(db), nil
	case "file":
		fs, err := store.NewFile(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return store.NewMemory(), nil
	}
}
