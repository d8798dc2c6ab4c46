package holdings

import (
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssetLookup struct {
	info map[string]AssetInfo
}

func (f fakeAssetLookup) Lookup(assetID string) (AssetInfo, error) {
	if info, ok := f.info[assetID]; ok {
		return info, nil
	}
	return AssetInfo{Currency: "USD"}, nil
}

func ptr(v float64) *float64 { return &v }

func newTestCalculator() *Calculator {
	assets := fakeAssetLookup{info: map[string]AssetInfo{
		"SEC:AAPL:XNAS": {Currency: "USD"},
	}}
	fx := money.NewService(nil, zerolog.Nop()) // same-currency paths never hit the provider
	return NewCalculator(assets, fx, "USD", zerolog.Nop())
}

func TestCalculate_MultiLotFIFOSell(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", ActivityType: domain.ActivityBuy, Status: domain.ActivityStatusPosted, ActivityDate: date, Quantity: ptr(10), UnitPrice: ptr(100), Currency: "USD"},
		{ID: "a2", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", ActivityType: domain.ActivityBuy, Status: domain.ActivityStatusPosted, ActivityDate: date, Quantity: ptr(5), UnitPrice: ptr(110), Currency: "USD"},
		{ID: "a3", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", ActivityType: domain.ActivitySell, Status: domain.ActivityStatusPosted, ActivityDate: date, Quantity: ptr(12), UnitPrice: ptr(120), Currency: "USD"},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	pos, ok := result.Snapshot.Positions[domain.NewPositionID("acc1", "SEC:AAPL:XNAS")]
	require.True(t, ok)

	// 10 @ 100 + 5 @ 110 = 1000 + 550 = 1550 cost basis, sell 12 consumes all of
	// lot 1 (10 @ 100 = 1000) plus 2/5 of lot 2 (2 @ 110 = 220).
	assert.InDelta(t, 3, pos.Quantity, 0.0001)
	assert.InDelta(t, 330, pos.TotalCostBasis, 0.0001) // remaining 3 @ 110
	assert.Empty(t, result.Warnings)
}

func TestCalculate_SellExceedingLotsWarns(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", ActivityType: domain.ActivityBuy, Status: domain.ActivityStatusPosted, ActivityDate: date, Quantity: ptr(5), UnitPrice: ptr(100), Currency: "USD"},
		{ID: "a2", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", ActivityType: domain.ActivitySell, Status: domain.ActivityStatusPosted, ActivityDate: date, Quantity: ptr(10), UnitPrice: ptr(120), Currency: "USD"},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	assert.NotEmpty(t, result.Warnings)
	_, stillOpen := result.Snapshot.Positions[domain.NewPositionID("acc1", "SEC:AAPL:XNAS")]
	assert.False(t, stillOpen) // fully consumed, pruned
}

func TestCalculate_DepositAndWithdrawal(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", ActivityType: domain.ActivityDeposit, Status: domain.ActivityStatusPosted, ActivityDate: date, Amount: ptr(1000), Currency: "USD"},
		{ID: "a2", AccountID: "acc1", ActivityType: domain.ActivityWithdrawal, Status: domain.ActivityStatusPosted, ActivityDate: date, Amount: ptr(200), Currency: "USD"},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	assert.InDelta(t, 800, result.Snapshot.CashBalances["USD"], 0.0001)
	assert.InDelta(t, 800, result.Snapshot.NetContribution, 0.0001)
}

func TestCalculate_InternalTransferDoesNotAffectNetContribution(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityTransferIn, Status: domain.ActivityStatusPosted, ActivityDate: date, Amount: ptr(500), Currency: "USD"},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	assert.InDelta(t, 500, result.Snapshot.CashBalances["USD"], 0.0001)
	assert.Equal(t, 0.0, result.Snapshot.NetContribution)
}

func TestCalculate_ExternalTransferAffectsNetContribution(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityTransferIn, Status: domain.ActivityStatusPosted, ActivityDate: date, Amount: ptr(500), Currency: "USD", Metadata: []byte(`{"flow":{"is_external":true}}`)},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	assert.InDelta(t, 500, result.Snapshot.NetContribution, 0.0001)
}

func TestCalculate_CarriesForwardPriorSnapshot(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	prior := &domain.AccountStateSnapshot{
		Positions:    map[string]domain.Position{},
		CashBalances: map[string]float64{"USD": 1000},
	}

	result := calc.Calculate(prior, "acc1", date, "USD", nil)
	assert.Equal(t, 1000.0, result.Snapshot.CashBalances["USD"])
}

func TestCalculate_NonPostedActivitiesIgnored(t *testing.T) {
	calc := newTestCalculator()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	activities := []domain.Activity{
		{ID: "a1", AccountID: "acc1", ActivityType: domain.ActivityDeposit, Status: domain.ActivityStatusDraft, ActivityDate: date, Amount: ptr(1000), Currency: "USD"},
	}

	result := calc.Calculate(nil, "acc1", date, "USD", activities)
	assert.Equal(t, 0.0, result.Snapshot.CashBalances["USD"])
}
