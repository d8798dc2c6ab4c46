package domain

import "time"

// Quote is a single day's OHLCV observation for an asset from one provider.
// ID is asset_id_date_source, joined with underscores.
type Quote struct {
	ID        string
	AssetID   string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    float64
	Currency  string
	DataSource string
	CreatedAt time.Time
}

// NewQuoteID builds the canonical quote ID for an asset/date/source triple.
func NewQuoteID(assetID string, date time.Time, source string) string {
	return assetID + "_" + date.Format("2006-01-02") + "_" + source
}

// QuoteSyncState is the per-asset control record the quote sync service
// reads and updates on every sync attempt.
type QuoteSyncState struct {
	AssetID           string
	PreferredProvider string
	LastQuoteDate     *time.Time
	LastSyncedAt      *time.Time
	LastSyncError     string
	ErrorCount        int
	ConsecutiveErrors int
	IsActive          bool
	ProfileEnriched   bool
}

// RecordSuccess advances the sync-state machine's success transition:
// consecutive_errors resets and last_quote_date/last_synced_at advance.
func (s *QuoteSyncState) RecordSuccess(lastQuoteDate, syncedAt time.Time) {
	s.LastQuoteDate = &lastQuoteDate
	s.LastSyncedAt = &syncedAt
	s.ConsecutiveErrors = 0
	s.LastSyncError = ""
}

// RecordFailure advances the sync-state machine's failure transition.
func (s *QuoteSyncState) RecordFailure(err string, at time.Time) {
	s.LastSyncedAt = &at
	s.LastSyncError = err
	s.ErrorCount++
	s.ConsecutiveErrors++
}
