// Package publisher polls a trades store and forwards changed rows to a
// broker's ingestion endpoint.
package publisher

import (
	"context"
	"fmt"

	"market-broker/src/interfaces"
	"market-broker/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// DataService remembers the last row seen per subject and reports the
// subjects whose most recent row changed time.
// -----------------------------------------------------------------------------

type DataService struct {
	store      interfaces.ITradeStore
	priceScale int32

	subjects []string
	last     map[string]models.MStoreRow
}

// -----------------------------------------------------------------------------

// NewDataService loads the subject list and the current row of each subject.
func NewDataService(ctx context.Context, store interfaces.ITradeStore, priceScale int32) (*DataService, error) {
	subjects, err := store.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}

	ds := &DataService{
		store:      store,
		priceScale: priceScale,
		subjects:   subjects,
		last:       make(map[string]models.MStoreRow, len(subjects)),
	}

	current, err := ds.currentRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range current {
		ds.last[row.Subject] = row
	}
	return ds, nil
}

// -----------------------------------------------------------------------------

// Subjects returns the subjects discovered in the store.
func (ds *DataService) Subjects() []string {
	return ds.subjects
}

// -----------------------------------------------------------------------------

// Current returns a record for every subject that has at least one row.
func (ds *DataService) Current() []*models.MUpdateRecord {
	out := make([]*models.MUpdateRecord, 0, len(ds.subjects))
	for _, s := range ds.subjects {
		if row := ds.last[s]; row.Time != 0 {
			out = append(out, ds.ToRecord(row))
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// CheckForUpdates re-reads every subject and returns those whose latest row
// has a different time than the last one seen, remembering the new rows.
func (ds *DataService) CheckForUpdates(ctx context.Context) ([]*models.MUpdateRecord, error) {
	current, err := ds.currentRows(ctx)
	if err != nil {
		return nil, err
	}

	var changed []*models.MUpdateRecord
	for _, row := range current {
		if ds.last[row.Subject].Time != row.Time {
			changed = append(changed, ds.ToRecord(row))
			ds.last[row.Subject] = row
		}
	}
	return changed, nil
}

// -----------------------------------------------------------------------------

// A subject with an empty table yields a zero row.
func (ds *DataService) currentRows(ctx context.Context) ([]models.MStoreRow, error) {
	rows := make([]models.MStoreRow, 0, len(ds.subjects))
	for _, s := range ds.subjects {
		row, ok, err := ds.store.LatestRow(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to poll %s: %w", s, err)
		}
		if !ok {
			row = models.MStoreRow{Subject: s}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// -----------------------------------------------------------------------------

// ToRecord converts a stored row, with prices in minor units, to an update
// on the finest interval.
func (ds *DataService) ToRecord(row models.MStoreRow) *models.MUpdateRecord {
	return &models.MUpdateRecord{
		Name:        row.Subject,
		Interval:    models.IntervalFinest,
		Timestamp:   row.Time,
		AvgPrice:    decimal.New(row.AvgCents, -ds.priceScale),
		MinPrice:    decimal.New(row.MinCents, -ds.priceScale),
		MaxPrice:    decimal.New(row.MaxCents, -ds.priceScale),
		VolumeMoved: row.VolumeMoved,
		NumTrades:   row.NumTrades,
	}
}
