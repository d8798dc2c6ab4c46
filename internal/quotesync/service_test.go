package quotesync

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateStore struct {
	states map[string]domain.QuoteSyncState
}

func newFakeStateStore() *fakeStateStore { return &fakeStateStore{states: map[string]domain.QuoteSyncState{}} }

func (f *fakeStateStore) GetByAssetID(assetID string) (*domain.QuoteSyncState, error) {
	if s, ok := f.states[assetID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeStateStore) Upsert(s domain.QuoteSyncState) error {
	f.states[s.AssetID] = s
	return nil
}

type fakeFetcher struct {
	lastQuoteDate time.Time
	err           error
}

func (f fakeFetcher) FetchAndStore(plan SymbolSyncPlan) (time.Time, error) {
	return f.lastQuoteDate, f.err
}

func TestSyncOne_SuccessRecordsState(t *testing.T) {
	states := newFakeStateStore()
	lastQuote := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(states, fakeFetcher{lastQuoteDate: lastQuote}, PlanOptions{Now: lastQuote.AddDate(0, 0, 1)}, zerolog.Nop())

	err := svc.SyncOne(AssetSyncInput{AssetID: "a1", IsActive: true}, "")
	require.NoError(t, err)

	got, err := states.GetByAssetID("a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.ConsecutiveErrors)
	require.NotNil(t, got.LastQuoteDate)
	assert.True(t, got.LastQuoteDate.Equal(lastQuote))
}

func TestSyncOne_FailureRecordsErrorAndReturnsIt(t *testing.T) {
	states := newFakeStateStore()
	svc := NewService(states, fakeFetcher{err: errors.New("provider down")}, PlanOptions{}, zerolog.Nop())

	err := svc.SyncOne(AssetSyncInput{AssetID: "a1", IsActive: true}, "")
	require.Error(t, err)

	got, err := states.GetByAssetID("a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.ConsecutiveErrors)
	assert.Equal(t, "provider down", got.LastSyncError)
}

func TestHandleActivityCreated_ActivatesAndExtendsBackward(t *testing.T) {
	states := newFakeStateStore()
	last := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	states.states["a1"] = domain.QuoteSyncState{AssetID: "a1", IsActive: false, LastQuoteDate: &last}

	svc := NewService(states, fakeFetcher{}, PlanOptions{}, zerolog.Nop())
	earlier := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.HandleActivityCreated("a1", earlier))

	got, _ := states.GetByAssetID("a1")
	assert.True(t, got.IsActive)
	assert.True(t, got.LastQuoteDate.Equal(earlier))
}

func TestReconcilePositions_ActivatesAndDeactivates(t *testing.T) {
	states := newFakeStateStore()
	states.states["held"] = domain.QuoteSyncState{AssetID: "held", IsActive: false}
	states.states["sold"] = domain.QuoteSyncState{AssetID: "sold", IsActive: true}

	svc := NewService(states, fakeFetcher{}, PlanOptions{}, zerolog.Nop())
	require.NoError(t, svc.ReconcilePositions(map[string]float64{"held": 10, "sold": 0}))

	held, _ := states.GetByAssetID("held")
	sold, _ := states.GetByAssetID("sold")
	assert.True(t, held.IsActive)
	assert.False(t, sold.IsActive)
}
