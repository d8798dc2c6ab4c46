package domain

import "time"

// Peer is a paired sync-engine counterpart.
type Peer struct {
	ID          string
	Name        string
	Address     string
	Fingerprint string
	Paired      bool
	LastSeen    time.Time
	LastSync    *time.Time

	// Checkpoints, persisted per peer. LastVersionSent is the highest
	// updated_version this process has confirmed the peer applied;
	// LastVersionReceived is the highest updated_version this process has
	// applied from the peer.
	LastVersionSent     int64
	LastVersionReceived int64
}
