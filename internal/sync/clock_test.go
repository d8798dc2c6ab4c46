package sync

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupClockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE sync_clock (id INTEGER PRIMARY KEY CHECK (id = 1), value INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT OR IGNORE INTO sync_clock (id, value) VALUES (1, 0)`)
	require.NoError(t, err)
	return db
}

func TestClock_NextIsMonotonic(t *testing.T) {
	db := setupClockDB(t)
	clock := NewClock(db)

	v1, err := clock.Next()
	require.NoError(t, err)
	v2, err := clock.Next()
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
}

func TestClock_CurrentDoesNotAdvance(t *testing.T) {
	db := setupClockDB(t)
	clock := NewClock(db)

	_, err := clock.Next()
	require.NoError(t, err)

	c1, err := clock.Current()
	require.NoError(t, err)
	c2, err := clock.Current()
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}
