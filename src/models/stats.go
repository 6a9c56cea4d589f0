package models

// MBrokerStats is served by /api/stats.
type MBrokerStats struct {
	Connections          int            `json:"connections"`
	SubscribersBySubject map[string]int `json:"subscribers_by_subject"`
	PendingMessages      int            `json:"pending_messages"`
	DroppedMessages      int64          `json:"dropped_messages"`
	AdmittedUpdates      int64          `json:"admitted_updates"`
	DecodeErrors         int64          `json:"decode_errors"`
	PublisherSession     string         `json:"publisher_session"`
	LatestUpdate         int64          `json:"latest_update"`
}

// MStoreRow is one row read from a publisher backing store.
type MStoreRow struct {
	Subject     string
	Time        int64
	NumTrades   int64
	VolumeMoved int64
	AvgCents    int64
	MinCents    int64
	MaxCents    int64
}
