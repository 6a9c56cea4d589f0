package storage

import (
	"database/sql"

	"market-broker/src/helpers"
	"market-broker/src/logger"
	"market-broker/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresStore struct {
	tradeStore
	Config models.MStorageConfig
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg models.MStorageConfig, log *logger.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DBConnectionString)
	if err != nil {
		return nil, helpers.NewDatabaseError("failed to open postgres", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, helpers.NewDatabaseError("failed to reach postgres", err)
	}

	log.Info("PostgresStore connected")
	return &PostgresStore{
		tradeStore: tradeStore{
			DB:     db,
			Logger: log,
			listTablesQuery: `SELECT table_name FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_name LIKE 'trades\_%'`,
		},
		Config: cfg,
	}, nil
}
