package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BatchLimit bounds how many rows travel in one network message or DB
// transaction, per spec §5's back-pressure rule.
const BatchLimit = 1000

// AckTimeout bounds how long the initiator waits for acks before aborting
// the session cleanly and persisting whatever was already confirmed.
const AckTimeout = 5 * time.Second

// TableStore is a synced table's read/apply surface. ReadSince returns rows
// with updated_version > since, capped at limit, plus the max version among
// them. Apply upserts rows whose incoming updated_version exceeds the
// stored value, discarding equal/lower versions, and returns the greatest
// version actually applied.
type TableStore interface {
	ReadSince(since int64, limit int64) (rows []map[string]any, maxVersion int64, err error)
	Apply(rows []map[string]any) (maxApplied int64, err error)
}

// Session drives one initiator-side sync exchange against a single peer
// over transport, per spec §4.6's session flow.
type Session struct {
	transport Transport
	stores    map[string]TableStore
	deviceID  string
	log       zerolog.Logger
}

// NewSession builds a sync session for one peer connection. stores must
// have an entry for every name in SyncedTables that this process replicates.
func NewSession(transport Transport, stores map[string]TableStore, deviceID string, log zerolog.Logger) *Session {
	return &Session{transport: transport, stores: stores, deviceID: deviceID, log: log.With().Str("component", "sync.Session").Logger()}
}

// Run executes one full initiator exchange: Hello, Pull, receive+apply
// batches until done, then push local changes. It returns the peer's
// updated checkpoint pair for the caller to persist.
func (s *Session) Run(lastVersionSent, lastVersionReceived int64) (newSent, newReceived int64, err error) {
	if err := s.transport.Send(Envelope{
		Type: MessageHello, MessageID: uuid.NewString(), DeviceID: s.deviceID, App: "portfolio-engine", Schema: 1,
	}); err != nil {
		return lastVersionSent, lastVersionReceived, fmt.Errorf("send hello: %w", err)
	}

	if err := s.transport.Send(Envelope{
		Type: MessagePull, MessageID: uuid.NewString(), Since: lastVersionReceived, Limit: BatchLimit,
	}); err != nil {
		return lastVersionSent, lastVersionReceived, fmt.Errorf("send pull: %w", err)
	}

	appliedMax, err := s.pullPhase()
	if err != nil {
		return lastVersionSent, lastVersionReceived, err
	}
	if appliedMax > lastVersionReceived {
		lastVersionReceived = appliedMax
	}

	pushedMax, err := s.pushPhase(lastVersionSent)
	if err != nil {
		return lastVersionSent, lastVersionReceived, err
	}
	if pushedMax > lastVersionSent {
		lastVersionSent = pushedMax
	}

	return lastVersionSent, lastVersionReceived, nil
}

// pullPhase receives and applies every *Batch message until one arrives
// with Done=true, acking after each, and returns the highest applied version.
func (s *Session) pullPhase() (int64, error) {
	var appliedMax int64

	for {
		env, err := s.transport.Receive()
		if err != nil {
			return appliedMax, fmt.Errorf("receive batch: %w", err)
		}
		if env.Type != MessageBatch {
			continue
		}

		store, ok := s.stores[env.Table]
		if !ok {
			s.log.Warn().Str("table", env.Table).Msg("received batch for unknown table, skipping")
			if env.Done {
				return appliedMax, nil
			}
			continue
		}

		rows, err := DecodeRows(env.RowsData)
		if err != nil {
			return appliedMax, fmt.Errorf("decode rows for %s: %w", env.Table, err)
		}

		applied, err := store.Apply(rows)
		if err != nil {
			return appliedMax, fmt.Errorf("apply batch for %s: %w", env.Table, err)
		}
		if applied > appliedMax {
			appliedMax = applied
		}

		if err := s.transport.Send(Envelope{Type: MessageAck, MessageID: uuid.NewString(), AppliedThrough: appliedMax}); err != nil {
			return appliedMax, fmt.Errorf("send ack: %w", err)
		}

		if env.Done {
			return appliedMax, nil
		}
	}
}

// pushPhase sends this process's own changes for every synced table, in the
// fixed SyncedTables order, marking the final batch Done=true, then waits
// for the peer's ack of the highest version sent.
func (s *Session) pushPhase(lastVersionSent int64) (int64, error) {
	var maxSent int64

	for i, table := range SyncedTables {
		store, ok := s.stores[table]
		if !ok {
			continue
		}

		rows, maxVersion, err := store.ReadSince(lastVersionSent, BatchLimit)
		if err != nil {
			return maxSent, fmt.Errorf("read changes for %s: %w", table, err)
		}
		if maxVersion > maxSent {
			maxSent = maxVersion
		}

		encoded, err := EncodeRows(rows)
		if err != nil {
			return maxSent, fmt.Errorf("encode rows for %s: %w", table, err)
		}

		done := i == len(SyncedTables)-1
		if err := s.transport.Send(Envelope{
			Type: MessageBatch, MessageID: uuid.NewString(), Table: table,
			RowsData: encoded, MaxVersion: maxVersion, Done: done,
		}); err != nil {
			return maxSent, fmt.Errorf("send batch for %s: %w", table, err)
		}
	}

	appliedThrough, err := s.awaitAck()
	if err != nil {
		return maxSent, err
	}
	if appliedThrough > maxSent {
		return appliedThrough, nil
	}
	return maxSent, nil
}

// awaitAck waits up to AckTimeout for one message from the peer and, when
// it is an Ack, returns its applied_through. A receive error or a timeout
// is returned as an error.
func (s *Session) awaitAck() (int64, error) {
	var maxApplied int64
	var env Envelope
	var err error
	done := make(chan struct{})
	go func() {
		env, err = s.transport.Receive()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(AckTimeout):
		return maxApplied, fmt.Errorf("await ack: no ack within %s", AckTimeout)
	}
	if err != nil {
		return maxApplied, fmt.Errorf("await ack: %w", err)
	}
	if env.Type == MessageAck && env.AppliedThrough > maxApplied {
		maxApplied = env.AppliedThrough
	}
	return maxApplied, nil
}
