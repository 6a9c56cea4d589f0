package models

import "github.com/shopspring/decimal"

// Interval tags carried in the `si` field.
const (
	IntervalBaseline = 0 // directory / seed records
	IntervalFinest   = 1 // primary sampling interval, drives the latest value
)

// -----------------------------------------------------------------------------
// MUpdateRecord is one published market-data update for a subject.
// -----------------------------------------------------------------------------

type MUpdateRecord struct {
	Name        string          `json:"name"`
	Interval    int             `json:"interval"`
	Timestamp   int64           `json:"time"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	VolumeMoved int64           `json:"volume_moved"`
	NumTrades   int64           `json:"num_of_trades"`
}

// -----------------------------------------------------------------------------
// MSubscribeRequest is the decoded `{"stock": "<name>"}` subscriber request.
// -----------------------------------------------------------------------------

type MSubscribeRequest struct {
	Stock string `json:"stock"`
}
