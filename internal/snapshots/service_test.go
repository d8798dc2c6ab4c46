package snapshots

import (
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/holdings"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivityLister struct {
	byAccount map[string][]domain.Activity
}

func (f fakeActivityLister) ListByAccountFromDate(accountID string, fromDate time.Time) ([]domain.Activity, error) {
	return f.byAccount[accountID], nil
}

type fakeAssets struct{}

func (fakeAssets) Lookup(assetID string) (holdings.AssetInfo, error) {
	return holdings.AssetInfo{Currency: "USD"}, nil
}

func ptr(v float64) *float64 { return &v }

func newTestService(t *testing.T, activities fakeActivityLister) (*Service, *Repository) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	fx := money.NewService(nil, zerolog.Nop())
	calc := holdings.NewCalculator(fakeAssets{}, fx, "USD", zerolog.Nop())
	svc := NewService(repo, activities, calc, fakeAssets{}, fx, "USD", zerolog.Nop())
	return svc, repo
}

func TestRecalculateAccount_ReplaysAcrossDays(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	activities := fakeActivityLister{byAccount: map[string][]domain.Activity{
		"acc1": {
			{ID: "a1", AccountID: "acc1", ActivityType: domain.ActivityDeposit, Status: domain.ActivityStatusPosted, ActivityDate: d1, Amount: ptr(1000), Currency: "USD"},
			{ID: "a2", AccountID: "acc1", ActivityType: domain.ActivityWithdrawal, Status: domain.ActivityStatusPosted, ActivityDate: d2, Amount: ptr(200), Currency: "USD"},
		},
	}}

	svc, repo := newTestService(t, activities)
	_, err := svc.RecalculateAccount("acc1", "USD", d1, d2)
	require.NoError(t, err)

	day1, err := repo.GetLatestBefore("acc1", d1)
	require.NoError(t, err)
	require.NotNil(t, day1)
	assert.InDelta(t, 1000, day1.CashBalances["USD"], 0.0001)

	day2, err := repo.GetLatestBefore("acc1", d2)
	require.NoError(t, err)
	require.NotNil(t, day2)
	assert.InDelta(t, 800, day2.CashBalances["USD"], 0.0001)
}

func TestRecalculateAccount_OverwritesExistingWindow(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	svc, repo := newTestService(t, fakeActivityLister{})
	stale := sampleSnapshot("acc1", d1)
	stale.CashBalances["USD"] = 99999
	require.NoError(t, repo.Upsert(stale))

	_, err := svc.RecalculateAccount("acc1", "USD", d1, d1)
	require.NoError(t, err)

	got, err := repo.GetLatestBefore("acc1", d1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, 99999.0, got.CashBalances["USD"])
}

func TestImportHoldings_SkipsWhenUnchanged(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	svc, _ := newTestService(t, fakeActivityLister{})

	snap := domain.AccountStateSnapshot{
		AccountID: "acc1", SnapshotDate: d1, Currency: "USD",
		Positions: map[string]domain.Position{}, CashBalances: map[string]float64{"USD": 500}, CostBasis: 0,
	}
	saved, err := svc.ImportHoldings(snap)
	require.NoError(t, err)
	assert.True(t, saved)

	snap.SnapshotDate = d2
	saved, err = svc.ImportHoldings(snap)
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestImportHoldings_SavesWhenChanged(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	svc, _ := newTestService(t, fakeActivityLister{})

	snap := domain.AccountStateSnapshot{
		AccountID: "acc1", SnapshotDate: d1, Currency: "USD",
		Positions: map[string]domain.Position{}, CashBalances: map[string]float64{"USD": 500},
	}
	saved, err := svc.ImportHoldings(snap)
	require.NoError(t, err)
	assert.True(t, saved)

	snap.SnapshotDate = d2
	snap.CashBalances = map[string]float64{"USD": 700}
	saved, err = svc.ImportHoldings(snap)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestBackfillSyntheticHistory_ClonesEarliest(t *testing.T) {
	d1 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	svc, repo := newTestService(t, fakeActivityLister{})
	only := sampleSnapshot("acc1", d1)
	only.Source = domain.SnapshotSourceBrokerImported
	require.NoError(t, repo.Upsert(only))

	require.NoError(t, svc.BackfillSyntheticHistory("acc1"))

	earlier := d1.AddDate(0, -3, 0)
	got, err := repo.GetEarliest("acc1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, earlier.Format("2006-01-02"), got.SnapshotDate.Format("2006-01-02"))
	assert.Equal(t, domain.SnapshotSourceSynthetic, got.Source)
}

func TestBackfillSyntheticHistory_NoOpWhenCalculatedExists(t *testing.T) {
	d1 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	svc, repo := newTestService(t, fakeActivityLister{})
	require.NoError(t, repo.Upsert(sampleSnapshot("acc1", d1))) // SnapshotSourceCalculated

	require.NoError(t, svc.BackfillSyntheticHistory("acc1"))

	got, err := repo.GetEarliest("acc1")
	require.NoError(t, err)
	assert.Equal(t, d1.Format("2006-01-02"), got.SnapshotDate.Format("2006-01-02"))
}

func TestAggregateTotal_SumsAcrossAccounts(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	svc, repo := newTestService(t, fakeActivityLister{})
	s1 := sampleSnapshot("acc1", d1)
	s1.CashBalances["USD"] = 300
	s2 := sampleSnapshot("acc2", d1)
	s2.CashBalances["USD"] = 200
	require.NoError(t, repo.Upsert(s1))
	require.NoError(t, repo.Upsert(s2))

	require.NoError(t, svc.AggregateTotal())

	total, err := repo.GetLatestBefore(domain.TotalAccountID, d1)
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.InDelta(t, 500, total.CashBalances["USD"], 0.0001)
}
