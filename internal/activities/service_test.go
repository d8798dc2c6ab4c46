package activities

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
		CREATE TABLE activities (
			id TEXT PRIMARY KEY, account_id TEXT, asset_id TEXT, activity_type TEXT,
			activity_type_override TEXT, subtype TEXT, status TEXT, activity_date TEXT,
			settlement_date TEXT, quantity REAL, unit_price REAL, amount REAL, fee REAL,
			currency TEXT, fx_rate REAL, notes TEXT, metadata TEXT, source_system TEXT,
			source_record_id TEXT, source_group_id TEXT, idempotency_key TEXT,
			import_run_id TEXT, needs_review INTEGER, is_user_modified INTEGER,
			created_at TEXT, updated_at TEXT, updated_version INTEGER, origin TEXT, tombstone INTEGER
		)
	`)
	require.NoError(t, err)
	return db
}

func TestResolveAssetID_SymbolWinsOverAssetID(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, zerolog.Nop())
	id, err := svc.ResolveAssetID("CASH:USD", "AAPL", "XNAS", "", domain.ActivityBuy, "USD")
	require.NoError(t, err)
	assert.Equal(t, "SEC:AAPL:XNAS", id)
}

func TestResolveAssetID_UsesSuppliedAssetID(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, zerolog.Nop())
	id, err := svc.ResolveAssetID("SEC:AAPL:XNAS", "", "", "", domain.ActivityBuy, "USD")
	require.NoError(t, err)
	assert.Equal(t, "SEC:AAPL:XNAS", id)
}

func TestResolveAssetID_CashDefaultsToCashAsset(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, zerolog.Nop())
	id, err := svc.ResolveAssetID("", "", "", "", domain.ActivityDeposit, "USD")
	require.NoError(t, err)
	assert.Equal(t, "CASH:USD", id)
}

func TestResolveAssetID_FailsWithoutAssetOrSymbol(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, zerolog.Nop())
	_, err := svc.ResolveAssetID("", "", "", "", domain.ActivityBuy, "USD")
	assert.Error(t, err)
}

func TestNormalizeMinorUnit_LSE(t *testing.T) {
	unitPrice := 12050.0
	fee := 250.0
	a := domain.Activity{Currency: "GBp", UnitPrice: &unitPrice, Fee: &fee}

	NormalizeMinorUnit(&a)

	assert.Equal(t, "GBP", a.Currency)
	assert.InDelta(t, 120.50, *a.UnitPrice, 0.0001)
	assert.InDelta(t, 2.50, *a.Fee, 0.0001)
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	qty := 10.0
	a := domain.Activity{AccountID: "acc1", ActivityType: domain.ActivityBuy, ActivityDate: date, AssetID: "SEC:AAPL:XNAS", Quantity: &qty, Currency: "USD"}

	key1 := IdempotencyKey(a)
	key2 := IdempotencyKey(a)
	assert.Equal(t, key1, key2)

	a.Notes = "different"
	key3 := IdempotencyKey(a)
	assert.NotEqual(t, key1, key3)
}

func TestIngest_CreateInsertsAndDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(repo, nil, nil, nil, zerolog.Nop())

	activity := domain.Activity{
		AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityDeposit,
		ActivityDate: time.Now(), Currency: "USD",
	}

	result, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{activity}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Empty(t, result.Errors)

	// Re-ingesting the identical economic event should dedupe, not insert twice.
	result2, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{activity}})
	require.NoError(t, err)
	assert.Equal(t, 0, result2.Inserted)
	assert.Len(t, result2.Errors, 1)
}

func TestIngest_PreparationFailureAbortsBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(repo, nil, nil, nil, zerolog.Nop())

	_, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{{ActivityType: domain.ActivityBuy}}})
	assert.Error(t, err)
}

func TestIngest_DeleteVoidsActivity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(repo, nil, nil, nil, zerolog.Nop())

	activity := domain.Activity{
		AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityDeposit,
		ActivityDate: time.Now(), Currency: "USD",
	}
	result, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{activity}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	inserted, err := repo.GetByIdempotencyKey(IdempotencyKey(activity))
	require.NoError(t, err)
	require.NotNil(t, inserted)

	delResult, err := svc.Ingest(BulkRequest{DeleteIDs: []string{inserted.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, delResult.Deleted)

	voided, err := repo.GetByID(inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusVoid, voided.Status)
	assert.True(t, voided.Tombstone)
}

// fakeAssetStore is an in-memory AssetStore for testing symbol resolution
// and CSV-check side effects without a real database.
type fakeAssetStore struct {
	bySymbol    map[string][]domain.Asset
	byID        map[string]domain.Asset
	upsertCalls int
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{bySymbol: map[string][]domain.Asset{}, byID: map[string]domain.Asset{}}
}

func (f *fakeAssetStore) FindBySymbol(symbol string) ([]domain.Asset, error) {
	return f.bySymbol[symbol], nil
}

func (f *fakeAssetStore) GetByID(id string) (*domain.Asset, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeAssetStore) Upsert(a domain.Asset) error {
	f.upsertCalls++
	f.byID[a.ID] = a
	f.bySymbol[a.Symbol] = append(f.bySymbol[a.Symbol], a)
	return nil
}

func TestIngest_SymbolWinsOverSuppliedAssetID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	assets := newFakeAssetStore()
	svc := NewService(repo, assets, nil, nil, zerolog.Nop())

	activity := domain.Activity{
		AccountID: "acc1", AssetID: "WRONG:ID", Symbol: "AAPL", ExchangeMIC: "XNAS",
		ActivityType: domain.ActivityBuy, ActivityDate: time.Now(), Currency: "USD",
	}

	result, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{activity}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	stored, err := repo.GetByIdempotencyKey(IdempotencyKey(domain.Activity{
		AccountID: activity.AccountID, ActivityType: activity.ActivityType, ActivityDate: activity.ActivityDate,
		AssetID: "SEC:AAPL:XNAS", Currency: activity.Currency,
	}))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "SEC:AAPL:XNAS", stored.AssetID)
}

func TestIngest_LinksTransferPairsByDateCurrencyAssetAmount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(repo, nil, nil, nil, zerolog.Nop())

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	amount := 500.0
	transferIn := domain.Activity{
		AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityTransferIn,
		ActivityDate: date, Currency: "USD", Amount: &amount,
	}
	transferOut := domain.Activity{
		AccountID: "acc2", AssetID: "CASH:USD", ActivityType: domain.ActivityTransferOut,
		ActivityDate: date, Currency: "USD", Amount: &amount,
	}

	result, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{transferIn, transferOut}})
	require.NoError(t, err)
	require.Equal(t, 2, result.Inserted)

	inRow, err := repo.GetByIdempotencyKey(IdempotencyKey(transferIn))
	require.NoError(t, err)
	outRow, err := repo.GetByIdempotencyKey(IdempotencyKey(transferOut))
	require.NoError(t, err)

	require.NotEmpty(t, inRow.SourceGroupID)
	assert.Equal(t, inRow.SourceGroupID, outRow.SourceGroupID)
}

func TestIngest_UnmatchedTransferHalfStaysIndependent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(repo, nil, nil, nil, zerolog.Nop())

	amount := 100.0
	transferIn := domain.Activity{
		AccountID: "acc1", AssetID: "CASH:USD", ActivityType: domain.ActivityTransferIn,
		ActivityDate: time.Now(), Currency: "USD", Amount: &amount,
	}

	result, err := svc.Ingest(BulkRequest{Creates: []domain.Activity{transferIn}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	row, err := repo.GetByIdempotencyKey(IdempotencyKey(transferIn))
	require.NoError(t, err)
	assert.Empty(t, row.SourceGroupID)
}

func TestCheckCSV_DryRunHasNoAssetSideEffects(t *testing.T) {
	assets := newFakeAssetStore()
	svc := NewService(nil, assets, nil, nil, zerolog.Nop())

	rows := []domain.Activity{
		{AccountID: "acc1", ActivityType: domain.ActivityBuy, ActivityDate: time.Now(), Symbol: "AAPL", ExchangeMIC: "XNAS", Currency: "USD"},
	}

	results := svc.CheckCSV(rows, CSVCheckDryRun)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, "SEC:AAPL:XNAS", results[0].AssetID)
	assert.Equal(t, 0, assets.upsertCalls)
}

func TestCheckCSV_LegacyCreatesMinimalAssetForUnknownSymbol(t *testing.T) {
	assets := newFakeAssetStore()
	svc := NewService(nil, assets, nil, nil, zerolog.Nop())

	rows := []domain.Activity{
		{AccountID: "acc1", ActivityType: domain.ActivityBuy, ActivityDate: time.Now(), Symbol: "AAPL", ExchangeMIC: "XNAS", Currency: "USD"},
	}

	results := svc.CheckCSV(rows, CSVCheckLegacy)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, "SEC:AAPL:XNAS", results[0].AssetID)
	assert.Equal(t, 1, assets.upsertCalls)
}

func TestCheckCSV_LegacyRegistersImpliedFxPairForExistingAsset(t *testing.T) {
	assets := newFakeAssetStore()
	assets.bySymbol["AAPL"] = []domain.Asset{{ID: "SEC:AAPL:XNAS", Symbol: "AAPL", ExchangeMIC: "XNAS", Currency: "USD"}}
	assets.byID["SEC:AAPL:XNAS"] = assets.bySymbol["AAPL"][0]
	fx := &fakeFxRegistrar{}
	svc := NewService(nil, assets, fx, nil, zerolog.Nop())

	rows := []domain.Activity{
		{AccountID: "acc1", ActivityType: domain.ActivityBuy, ActivityDate: time.Now(), Symbol: "AAPL", ExchangeMIC: "XNAS", Currency: "EUR"},
	}

	results := svc.CheckCSV(rows, CSVCheckLegacy)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, "SEC:AAPL:XNAS", results[0].AssetID)
	assert.Equal(t, 0, assets.upsertCalls)
	assert.Equal(t, []string{"EUR->USD"}, fx.registered)
}

func TestCheckCSV_MissingAssetAndSymbolIsInvalid(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, zerolog.Nop())

	rows := []domain.Activity{
		{AccountID: "acc1", ActivityType: domain.ActivityBuy, ActivityDate: time.Now(), Currency: "USD"},
	}

	results := svc.CheckCSV(rows, CSVCheckDryRun)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
	assert.NotEmpty(t, results[0].Errors)
}

type fakeFxRegistrar struct {
	registered []string
}

func (f *fakeFxRegistrar) RegisterPair(from, to string) error {
	f.registered = append(f.registered, from+"->"+to)
	return nil
}
