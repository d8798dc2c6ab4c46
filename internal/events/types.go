// Package events provides a small in-process event bus used to decouple
// activity ingestion, holdings recalculation, quote sync, and the P2P sync
// engine from one another.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types.
type EventType string

const (
	// Activity ingestion events.
	ActivityCreated EventType = "ACTIVITY_CREATED"
	ActivityUpdated EventType = "ACTIVITY_UPDATED"
	ActivityDeleted EventType = "ACTIVITY_DELETED"
	ImportCompleted EventType = "IMPORT_COMPLETED"

	// Holdings and snapshot events.
	HoldingsRecalculated EventType = "HOLDINGS_RECALCULATED"
	SnapshotsAggregated  EventType = "SNAPSHOTS_AGGREGATED"

	// Market data and quote sync events.
	QuoteSyncStarted EventType = "QUOTE_SYNC_STARTED"
	QuoteSyncCompleted EventType = "QUOTE_SYNC_COMPLETED"
	QuoteSyncFailed    EventType = "QUOTE_SYNC_FAILED"
	CircuitOpened      EventType = "CIRCUIT_OPENED"
	CircuitClosed      EventType = "CIRCUIT_CLOSED"

	// Peer-to-peer sync engine events.
	PeerConnected        EventType = "PEER_CONNECTED"
	PeerDisconnected     EventType = "PEER_DISCONNECTED"
	SyncSessionStarted   EventType = "SYNC_SESSION_STARTED"
	SyncSessionCompleted EventType = "SYNC_SESSION_COMPLETED"
	SyncSessionFailed    EventType = "SYNC_SESSION_FAILED"

	// Generic.
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Event represents a system event with typed data. Data is kept as a map so
// it can be transported, logged, and re-hydrated into the typed form via
// GetTypedData without a separate wire format.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData converts the event's map data back to its typed EventData
// form, returning nil if the event type has no known typed representation or
// the conversion fails.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case ActivityCreated:
		var data ActivityCreatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ActivityUpdated:
		var data ActivityUpdatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ActivityDeleted:
		var data ActivityDeletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ImportCompleted:
		var data ImportCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case HoldingsRecalculated:
		var data HoldingsRecalculatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SnapshotsAggregated:
		var data SnapshotsAggregatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case QuoteSyncCompleted:
		var data QuoteSyncCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case QuoteSyncFailed:
		var data QuoteSyncFailedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case PeerConnected, PeerDisconnected:
		var data PeerConnectionData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SyncSessionCompleted:
		var data SyncSessionCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SyncSessionFailed:
		var data SyncSessionFailedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
