package sync

import "github.com/vmihailenco/msgpack/v5"

// MessageType discriminates the JSON envelope's "type" field.
type MessageType string

const (
	MessageHello   MessageType = "Hello"
	MessagePull    MessageType = "Pull"
	MessageBatch   MessageType = "Batch" // table name is carried on Envelope.Table
	MessageAck     MessageType = "Ack"
)

// SyncedTables is the closed set of tables the P2P sync engine replicates.
var SyncedTables = []string{
	"Accounts", "Assets", "Activities", "ImportProfiles", "AppSettings",
	"ContributionLimits", "Goals", "GoalAllocations",
}

// Envelope is the wire message: a discriminated union keyed by Type. Only
// the fields relevant to Type are populated; Rows are opaque JSON-decodable
// payloads the caller maps to its own row types per Table.
type Envelope struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`

	// Hello
	DeviceID     string   `json:"device_id,omitempty"`
	App          string   `json:"app,omitempty"`
	Schema       int      `json:"schema,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// Pull
	Since int64 `json:"since,omitempty"`
	Limit int64 `json:"limit,omitempty"`

	// <Table>Batch. RowsData holds the batch's rows msgpack-encoded for wire
	// compactness; the envelope itself (including this field as opaque
	// bytes) stays JSON so the discriminated union is easy to inspect.
	Table      string `json:"table,omitempty"`
	RowsData   []byte `json:"rows_data,omitempty"`
	MaxVersion int64  `json:"max_version,omitempty"`
	Done       bool   `json:"done,omitempty"`

	// Ack
	AppliedThrough int64 `json:"applied_through,omitempty"`
}

// EncodeRows msgpack-encodes a batch's rows for Envelope.RowsData.
func EncodeRows(rows []map[string]any) ([]byte, error) {
	return msgpack.Marshal(rows)
}

// DecodeRows msgpack-decodes an Envelope's RowsData back into rows.
func DecodeRows(data []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Transport is the reliable ordered channel a Session sends/receives
// Envelopes over. The production implementation wraps nhooyr.io/websocket;
// tests use an in-memory channel pair.
type Transport interface {
	Send(Envelope) error
	Receive() (Envelope, error)
}
