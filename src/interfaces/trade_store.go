package interfaces

import (
	"context"

	"market-broker/src/models"
)

// -----------------------------------------------------------------------------
// ITradeStore defines the contract for the tables a publisher polls.
// -----------------------------------------------------------------------------

type ITradeStore interface {

	// -----------------------------------------------------------------------------

	// ListSubjects returns every subject that has a trades table, upper-cased and sorted.
	ListSubjects(ctx context.Context) ([]string, error)

	// -----------------------------------------------------------------------------

	// LatestRow returns the most recent row of subject. ok is false when the
	// table is empty.
	LatestRow(ctx context.Context, subject string) (row models.MStoreRow, ok bool, err error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
