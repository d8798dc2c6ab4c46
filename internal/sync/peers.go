package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// PeerRepository persists the per-peer checkpoint pair
// (last_version_sent, last_version_received) and peer metadata.
type PeerRepository struct {
	db *sql.DB
}

// NewPeerRepository wraps the peers table.
func NewPeerRepository(db *sql.DB) *PeerRepository {
	return &PeerRepository{db: db}
}

// Upsert creates or updates a peer row.
func (r *PeerRepository) Upsert(p domain.Peer) error {
	var lastSync sql.NullString
	if p.LastSync != nil {
		lastSync = sql.NullString{String: p.LastSync.Format(time.RFC3339), Valid: true}
	}
	_, err := r.db.Exec(
		`INSERT INTO peers (id, name, address, fingerprint, paired, last_seen, last_sync, last_version_sent, last_version_received)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, address=excluded.address, fingerprint=excluded.fingerprint,
			paired=excluded.paired, last_seen=excluded.last_seen, last_sync=excluded.last_sync,
			last_version_sent=excluded.last_version_sent, last_version_received=excluded.last_version_received`,
		p.ID, p.Name, p.Address, p.Fingerprint, p.Paired, p.LastSeen.Format(time.RFC3339), lastSync,
		p.LastVersionSent, p.LastVersionReceived,
	)
	if err != nil {
		return fmt.Errorf("upsert peer: %w", err)
	}
	return nil
}

// GetByID returns a peer, or nil when not found.
func (r *PeerRepository) GetByID(id string) (*domain.Peer, error) {
	row := r.db.QueryRow(
		`SELECT id, name, address, fingerprint, paired, last_seen, last_sync, last_version_sent, last_version_received
		 FROM peers WHERE id = ?`, id,
	)

	var p domain.Peer
	var lastSeen string
	var lastSync sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Fingerprint, &p.Paired, &lastSeen, &lastSync, &p.LastVersionSent, &p.LastVersionReceived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get peer: %w", err)
	}

	p.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	if lastSync.Valid {
		t, _ := time.Parse(time.RFC3339, lastSync.String)
		p.LastSync = &t
	}
	return &p, nil
}

// ListPaired returns every paired peer, for the periodic sync loop.
func (r *PeerRepository) ListPaired() ([]domain.Peer, error) {
	rows, err := r.db.Query(
		`SELECT id, name, address, fingerprint, paired, last_seen, last_sync, last_version_sent, last_version_received
		 FROM peers WHERE paired = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("list paired peers: %w", err)
	}
	defer rows.Close()

	var out []domain.Peer
	for rows.Next() {
		var p domain.Peer
		var lastSeen string
		var lastSync sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Fingerprint, &p.Paired, &lastSeen, &lastSync, &p.LastVersionSent, &p.LastVersionReceived); err != nil {
			return nil, err
		}
		p.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		if lastSync.Valid {
			t, _ := time.Parse(time.RFC3339, lastSync.String)
			p.LastSync = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
