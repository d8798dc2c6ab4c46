package events

// EventData is the interface that all typed event payloads implement.
type EventData interface {
	// EventType returns the event type this data is associated with.
	EventType() EventType
}

// ActivityCreatedData is emitted after a single activity is inserted by the
// ingestion service. Nothing in this module subscribes to it.
type ActivityCreatedData struct {
	ActivityID string `json:"activity_id"`
	AccountID  string `json:"account_id"`
	AssetID    string `json:"asset_id"`
}

// EventType returns the event type for ActivityCreatedData.
func (d *ActivityCreatedData) EventType() EventType {
	return ActivityCreated
}

// ActivityUpdatedData is emitted when an existing activity's fields change.
type ActivityUpdatedData struct {
	ActivityID string `json:"activity_id"`
	AccountID  string `json:"account_id"`
	AssetID    string `json:"asset_id"`
}

// EventType returns the event type for ActivityUpdatedData.
func (d *ActivityUpdatedData) EventType() EventType {
	return ActivityUpdated
}

// ActivityDeletedData is emitted after an activity is removed.
type ActivityDeletedData struct {
	ActivityID string `json:"activity_id"`
	AccountID  string `json:"account_id"`
}

// EventType returns the event type for ActivityDeletedData.
func (d *ActivityDeletedData) EventType() EventType {
	return ActivityDeleted
}

// ImportCompletedData is emitted once a bulk import run finishes.
type ImportCompletedData struct {
	ImportRunID string `json:"import_run_id"`
	AccountID   string `json:"account_id"`
	Inserted    int    `json:"inserted"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
}

// EventType returns the event type for ImportCompletedData.
func (d *ImportCompletedData) EventType() EventType {
	return ImportCompleted
}

// HoldingsRecalculatedData is emitted after the holdings calculator finishes
// replaying an account's activities into daily snapshots.
type HoldingsRecalculatedData struct {
	AccountID     string `json:"account_id"`
	AsOfDate      string `json:"as_of_date"`
	DaysProcessed int    `json:"days_processed"`
}

// EventType returns the event type for HoldingsRecalculatedData.
func (d *HoldingsRecalculatedData) EventType() EventType {
	return HoldingsRecalculated
}

// SnapshotsAggregatedData is emitted after the TOTAL portfolio snapshot is
// rebuilt from per-account snapshots.
type SnapshotsAggregatedData struct {
	AsOfDate     string `json:"as_of_date"`
	AccountCount int    `json:"account_count"`
}

// EventType returns the event type for SnapshotsAggregatedData.
func (d *SnapshotsAggregatedData) EventType() EventType {
	return SnapshotsAggregated
}

// QuoteSyncCompletedData is emitted after a symbol's quote sync plan runs to
// completion.
type QuoteSyncCompletedData struct {
	AssetID       string `json:"asset_id"`
	Mode          string `json:"mode"`
	QuotesFetched int    `json:"quotes_fetched"`
	Provider      string `json:"provider"`
}

// EventType returns the event type for QuoteSyncCompletedData.
func (d *QuoteSyncCompletedData) EventType() EventType {
	return QuoteSyncCompleted
}

// QuoteSyncFailedData is emitted when every eligible provider failed to
// produce a quote for a symbol.
type QuoteSyncFailedData struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

// EventType returns the event type for QuoteSyncFailedData.
func (d *QuoteSyncFailedData) EventType() EventType {
	return QuoteSyncFailed
}

// PeerConnectionData is emitted when a sync peer connects or disconnects.
// Callers pick the concrete event type (PeerConnected/PeerDisconnected) when
// emitting through the manager; EventType here defaults to the connected case.
type PeerConnectionData struct {
	PeerID string `json:"peer_id"`
	Addr   string `json:"addr,omitempty"`
}

// EventType returns the event type for PeerConnectionData.
func (d *PeerConnectionData) EventType() EventType {
	return PeerConnected
}

// SyncSessionCompletedData is emitted after a pull/push session with a peer
// finishes successfully.
type SyncSessionCompletedData struct {
	PeerID     string `json:"peer_id"`
	RowsPulled int    `json:"rows_pulled"`
	RowsPushed int    `json:"rows_pushed"`
}

// EventType returns the event type for SyncSessionCompletedData.
func (d *SyncSessionCompletedData) EventType() EventType {
	return SyncSessionCompleted
}

// SyncSessionFailedData is emitted when a sync session aborts before both
// sides exchange acks.
type SyncSessionFailedData struct {
	PeerID string `json:"peer_id"`
	Reason string `json:"reason"`
}

// EventType returns the event type for SyncSessionFailedData.
func (d *SyncSessionFailedData) EventType() EventType {
	return SyncSessionFailed
}

// ErrorEventData wraps an error for generic error broadcast.
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData.
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
