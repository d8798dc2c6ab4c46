package sync

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupPeersDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE peers (
			id TEXT PRIMARY KEY, name TEXT, address TEXT, fingerprint TEXT, paired INTEGER,
			last_seen TEXT, last_sync TEXT, last_version_sent INTEGER, last_version_received INTEGER
		)
	`)
	require.NoError(t, err)
	return db
}

func TestPeerRepository_UpsertAndGet(t *testing.T) {
	db := setupPeersDB(t)
	repo := NewPeerRepository(db)

	p := domain.Peer{ID: "p1", Name: "laptop", Paired: true, LastSeen: time.Now(), LastVersionSent: 10, LastVersionReceived: 5}
	require.NoError(t, repo.Upsert(p))

	got, err := repo.GetByID("p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.LastVersionSent)
	assert.True(t, got.Paired)
}

func TestPeerRepository_ListPairedExcludesUnpaired(t *testing.T) {
	db := setupPeersDB(t)
	repo := NewPeerRepository(db)

	require.NoError(t, repo.Upsert(domain.Peer{ID: "p1", Paired: true, LastSeen: time.Now()}))
	require.NoError(t, repo.Upsert(domain.Peer{ID: "p2", Paired: false, LastSeen: time.Now()}))

	paired, err := repo.ListPaired()
	require.NoError(t, err)
	require.Len(t, paired, 1)
	assert.Equal(t, "p1", paired[0].ID)
}

func TestPeerRepository_GetByID_NotFound(t *testing.T) {
	db := setupPeersDB(t)
	repo := NewPeerRepository(db)

	got, err := repo.GetByID("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
