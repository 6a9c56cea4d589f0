package storage

import (
	"database/sql"

	"market-broker/src/helpers"
	"market-broker/src/logger"
	"market-broker/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	tradeStore
	Config models.MStorageConfig
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg models.MStorageConfig, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, helpers.NewDatabaseError("failed to open sqlite", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, helpers.NewDatabaseError("failed to open sqlite", err)
	}

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		log.Warning("Failed to set busy timeout: %v", err)
	}

	log.Info("SQLiteStore opened %s", cfg.DBPath)
	return &SQLiteStore{
		tradeStore: tradeStore{
			DB:              db,
			Logger:          log,
			listTablesQuery: `SELECT name FROM sqlite_master WHERE type = 'table'`,
		},
		Config: cfg,
	}, nil
}
