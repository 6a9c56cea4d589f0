package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"market-broker/src/helpers"
	"market-broker/src/interfaces"
	"market-broker/src/logger"
	"market-broker/src/models"
)

// TablePrefix names every per-subject trades table.
const TablePrefix = "trades_"

var (
	tableRegex   = regexp.MustCompile(`^trades_([A-Za-z0-9]+)$`)
	subjectRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// -----------------------------------------------------------------------------

// NewStore opens the store selected by cfg.DBType.
func NewStore(cfg models.MStorageConfig, log *logger.Logger) (interfaces.ITradeStore, error) {
	switch cfg.DBType {
	case "postgres":
		s, err := NewPostgresStore(cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, helpers.NewConfigurationError(fmt.Sprintf("unknown db_type %q", cfg.DBType), nil)
	}
}

// -----------------------------------------------------------------------------
// tradeStore holds the SQL shared by both drivers. Only the table listing
// query differs.
// -----------------------------------------------------------------------------

type tradeStore struct {
	DB     *sql.DB
	Logger *logger.Logger

	listTablesQuery string
}

// -----------------------------------------------------------------------------

// TableName returns the trades table of subject.
func TableName(subject string) (string, error) {
	if !subjectRegex.MatchString(subject) {
		return "", fmt.Errorf("subject %q cannot name a trades table", subject)
	}
	return TablePrefix + strings.ToLower(subject), nil
}

// -----------------------------------------------------------------------------

func (s *tradeStore) ListSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.listTablesQuery)
	if err != nil {
		return nil, helpers.NewDatabaseError("failed to list tables", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, helpers.NewDatabaseError("failed to scan table name", err)
		}
		if m := tableRegex.FindStringSubmatch(name); m != nil {
			subjects = append(subjects, strings.ToUpper(m[1]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("failed to list tables", err)
	}

	sort.Strings(subjects)
	return subjects, nil
}

// -----------------------------------------------------------------------------

func (s *tradeStore) LatestRow(ctx context.Context, subject string) (models.MStoreRow, bool, error) {
	row := models.MStoreRow{Subject: subject}

	table, err := TableName(subject)
	if err != nil {
		return row, false, err
	}

	query := fmt.Sprintf(`SELECT time, num_of_trades, volume_moved, avg_price, min_price, max_price
		FROM %s ORDER BY time DESC LIMIT 1`, table)

	err = s.DB.QueryRowContext(ctx, query).Scan(
		&row.Time, &row.NumTrades, &row.VolumeMoved, &row.AvgCents, &row.MinCents, &row.MaxCents)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, helpers.NewDatabaseError(fmt.Sprintf("failed to read latest row of %s", table), err)
	}
	return row, true, nil
}

// -----------------------------------------------------------------------------

func (s *tradeStore) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
