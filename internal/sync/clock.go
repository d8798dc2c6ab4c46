// Package sync reconciles mutable records between instances of the engine
// using a monotonic per-row version, per spec §4.6.
package sync

import (
	"database/sql"
	"fmt"
	"sync"
)

// Clock hands out the next monotonic version for locally mutated rows. The
// value is persisted in a single-row sequence table so it survives restarts;
// an in-process mutex serializes increments since sqlite's writer handle is
// already single-writer but this clock may be consulted outside a transaction.
type Clock struct {
	mu sync.Mutex
	db *sql.DB
}

// NewClock wraps the sync_clock table.
func NewClock(db *sql.DB) *Clock {
	return &Clock{db: db}
}

// Next increments and returns the new clock value, stamping it for the
// caller's row.updated_version.
func (c *Clock) Next() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin clock tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE sync_clock SET value = value + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("advance clock: %w", err)
	}

	var value int64
	if err := tx.QueryRow(`SELECT value FROM sync_clock WHERE id = 1`).Scan(&value); err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clock tx: %w", err)
	}
	return value, nil
}

// Current returns the clock's value without advancing it.
func (c *Clock) Current() (int64, error) {
	var value int64
	err := c.db.QueryRow(`SELECT value FROM sync_clock WHERE id = 1`).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return value, nil
}
