// Package storagetest fills SQLite trades tables for tests.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"market-broker/src/logger"
	"market-broker/src/models"
	"market-broker/src/storage"

	"github.com/stretchr/testify/require"
)

// NewSQLiteStore opens a store in a temporary directory with an empty trades
// table for each subject. The store is closed when the test ends.
func NewSQLiteStore(t testing.TB, subjects ...string) *storage.SQLiteStore {
	t.Helper()

	s, err := storage.NewSQLiteStore(models.MStorageConfig{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "trades.db"),
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, subject := range subjects {
		CreateSubject(t, s.DB, subject)
	}
	return s
}

// CreateSubject creates the trades table of subject.
func CreateSubject(t testing.TB, db *sql.DB, subject string) {
	t.Helper()

	table, err := storage.TableName(subject)
	require.NoError(t, err)

	_, err = db.ExecContext(context.Background(), fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time BIGINT PRIMARY KEY,
			num_of_trades BIGINT NOT NULL,
			volume_moved BIGINT NOT NULL,
			avg_price BIGINT NOT NULL,
			min_price BIGINT NOT NULL,
			max_price BIGINT NOT NULL
		)`, table))
	require.NoError(t, err)
}

// SaveRows inserts rows into their subject tables.
func SaveRows(t testing.TB, db *sql.DB, rows ...models.MStoreRow) {
	t.Helper()

	for _, r := range rows {
		table, err := storage.TableName(r.Subject)
		require.NoError(t, err)

		_, err = db.ExecContext(context.Background(),
			fmt.Sprintf(`INSERT INTO %s (time, num_of_trades, volume_moved, avg_price, min_price, max_price)
				VALUES (?, ?, ?, ?, ?, ?)`, table),
			r.Time, r.NumTrades, r.VolumeMoved, r.AvgCents, r.MinCents, r.MaxCents)
		require.NoError(t, err)
	}
}
