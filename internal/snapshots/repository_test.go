package snapshots

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE account_state_snapshots (
			id TEXT PRIMARY KEY, account_id TEXT, snapshot_date TEXT, currency TEXT,
			positions TEXT, cash_balances TEXT, cost_basis REAL, net_contribution REAL,
			net_contribution_base REAL, cash_total_account_currency REAL, cash_total_base_currency REAL,
			calculated_at TEXT, source TEXT, updated_version INTEGER, origin TEXT, tombstone INTEGER,
			UNIQUE(account_id, snapshot_date)
		)
	`)
	require.NoError(t, err)
	return db
}

func sampleSnapshot(accountID string, date time.Time) domain.AccountStateSnapshot {
	return domain.AccountStateSnapshot{
		ID: domain.NewSnapshotID(accountID, date), AccountID: accountID, SnapshotDate: date, Currency: "USD",
		Positions:    map[string]domain.Position{},
		CashBalances: map[string]float64{"USD": 100},
		CostBasis:    0, CalculatedAt: time.Now(), Source: domain.SnapshotSourceCalculated,
	}
}

func TestUpsert_InsertsAndGetLatestBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", date)))

	got, err := repo.GetLatestBefore("acc1", date.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.CashBalances["USD"])
}

func TestGetLatestBefore_NoneFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.GetLatestBefore("acc1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsert_ReplacesSameDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := sampleSnapshot("acc1", date)
	require.NoError(t, repo.Upsert(s))

	s.CashBalances["USD"] = 500
	require.NoError(t, repo.Upsert(s))

	got, err := repo.GetLatestBefore("acc1", date)
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.CashBalances["USD"])
}

func TestDeleteFromDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d1)))
	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d2)))

	require.NoError(t, repo.DeleteFromDate("acc1", d2))

	got, err := repo.GetLatestBefore("acc1", d2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d1.Format("2006-01-02"), got.SnapshotDate.Format("2006-01-02"))
}

func TestListAccountIDsAsOf_ExcludesTotal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", date)))
	require.NoError(t, repo.Upsert(sampleSnapshot(domain.TotalAccountID, date)))

	ids, err := repo.ListAccountIDsAsOf(date)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc1"}, ids)
}

func TestListDistinctDates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d1)))
	require.NoError(t, repo.Upsert(sampleSnapshot("acc2", d2)))

	dates, err := repo.ListDistinctDates()
	require.NoError(t, err)
	require.Len(t, dates, 2)
}

func TestCountNonCalculated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := sampleSnapshot("acc1", d1)
	s.Source = domain.SnapshotSourceBrokerImported
	require.NoError(t, repo.Upsert(s))

	nonCalc, hasCalc, err := repo.CountNonCalculated("acc1")
	require.NoError(t, err)
	assert.Equal(t, 1, nonCalc)
	assert.False(t, hasCalc)
}

func TestGetEarliest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d2)))
	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d1)))

	got, err := repo.GetEarliest("acc1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d1.Format("2006-01-02"), got.SnapshotDate.Format("2006-01-02"))
}
