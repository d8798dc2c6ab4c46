package activities

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/portfolio-engine/internal/apperr"
	"github.com/aristath/portfolio-engine/internal/assetid"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/events"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AssetStore is the subset of internal/assets.Repository the ingestion
// service needs: look up by symbol, look up by ID, create new assets.
type AssetStore interface {
	FindBySymbol(symbol string) ([]domain.Asset, error)
	GetByID(id string) (*domain.Asset, error)
	Upsert(a domain.Asset) error
}

// FxRegistrar is notified when ingestion discovers a currency pair implied
// by an activity whose currency differs from its asset's currency, so the
// pair can be tracked. The account's currency is not compared.
type FxRegistrar interface {
	RegisterPair(from, to string) error
}

// BulkRequest is the input to Ingest: a batch of creates, updates, and
// deletions processed together. The batch fails atomically on preparation
// errors (malformed rows); once preparation succeeds, valid rows persist
// even if sibling rows fail.
type BulkRequest struct {
	Creates   []domain.Activity
	Updates   []domain.Activity
	DeleteIDs []string
}

// BulkResult reports what happened to each row in a BulkRequest.
type BulkResult struct {
	Inserted int
	Updated  int
	Deleted  int
	Errors   []domain.RowError
}

// Service turns heterogeneous inputs into validated, canonical activities.
type Service struct {
	repo   *Repository
	assets AssetStore
	fx     FxRegistrar
	events *events.Manager
	log    zerolog.Logger
}

// NewService builds the activity ingestion service.
func NewService(repo *Repository, assetStore AssetStore, fx FxRegistrar, eventMgr *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		assets: assetStore,
		fx:     fx,
		events: eventMgr,
		log:    log.With().Str("service", "activities").Logger(),
	}
}

// ResolveAssetID implements the canonical asset ID resolution algorithm:
// symbol (if present) wins over any client-supplied asset_id; otherwise the
// supplied asset_id is used; otherwise cash activity types synthesize
// CASH:{currency}; otherwise resolution fails. An unknown symbol creates a
// minimal asset record (the "legacy" ingestion behavior).
func (s *Service) ResolveAssetID(assetIDIn, symbol, exchangeMIC, kindHint string, activityType domain.ActivityType, currency string) (string, error) {
	return s.resolveAssetID(assetIDIn, symbol, exchangeMIC, kindHint, activityType, currency, true)
}

// resolveAssetIDReadOnly mirrors ResolveAssetID's algorithm but never
// creates an asset record: an unknown symbol resolves to its synthesized
// canonical ID as a placeholder, for CSV dry-run checks that must have no
// asset-store side effects.
func (s *Service) resolveAssetIDReadOnly(assetIDIn, symbol, exchangeMIC, kindHint string, activityType domain.ActivityType, currency string) (string, error) {
	return s.resolveAssetID(assetIDIn, symbol, exchangeMIC, kindHint, activityType, currency, false)
}

func (s *Service) resolveAssetID(assetIDIn, symbol, exchangeMIC, kindHint string, activityType domain.ActivityType, currency string, persist bool) (string, error) {
	if symbol != "" {
		kind := assetid.InferKind(symbol, exchangeMIC, kindHint)

		if s.assets != nil {
			existing, err := s.assets.FindBySymbol(symbol)
			if err == nil {
				for _, a := range existing {
					if exchangeMIC == "" || a.ExchangeMIC == exchangeMIC {
						return a.ID, nil
					}
				}
			}
		}

		id, err := assetid.Synthesize(kind, symbol, exchangeMIC, currency)
		if err != nil {
			return "", err
		}
		if persist && s.assets != nil {
			now := time.Now()
			_ = s.assets.Upsert(domain.Asset{
				ID: id, Kind: kind, Symbol: symbol, ExchangeMIC: exchangeMIC, Currency: currency,
				CreatedAt: now, UpdatedAt: now,
			})
		}
		return id, nil
	}

	if assetIDIn != "" {
		return assetIDIn, nil
	}

	if isCashType(activityType) {
		return assetid.Synthesize(domain.AssetKindCash, "", "", currency)
	}

	return "", apperr.New(apperr.KindValidation, "activities.ResolveAssetID", "requires asset_id or symbol")
}

func isCashType(t domain.ActivityType) bool {
	switch t {
	case domain.ActivityDeposit, domain.ActivityWithdrawal, domain.ActivityDividend,
		domain.ActivityInterest, domain.ActivityCredit, domain.ActivityFee, domain.ActivityTax:
		return true
	default:
		return false
	}
}

// NormalizeMinorUnit applies the minor-unit normalization rule in place. It
// must run after asset resolution, since asset currency may supply the
// default currency for an activity that omitted one.
func NormalizeMinorUnit(a *domain.Activity) {
	if !money.IsMinorUnit(a.Currency) {
		return
	}
	major, unitPrice, amount, fee := money.NormalizeAmounts(a.Currency, a.UnitPrice, a.Amount, a.Fee)
	a.Currency = major
	a.UnitPrice = unitPrice
	a.Amount = amount
	a.Fee = fee
}

// IdempotencyKey computes the dedup hash for an activity: equal keys
// deduplicate on re-import of the same economic event.
func IdempotencyKey(a domain.Activity) string {
	parts := []string{
		a.AccountID,
		string(a.ActivityType),
		a.ActivityDate.UTC().Format(time.RFC3339),
		a.AssetID,
		floatKey(a.Quantity),
		floatKey(a.UnitPrice),
		floatKey(a.Amount),
		a.Currency,
		a.SourceRecordID,
		a.Notes,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func floatKey(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.8f", *v)
}

// Ingest validates, resolves, and persists a bulk mutation request.
// Preparation failures (malformed rows) abort the whole batch; once every
// row prepares successfully, persistence failures are per-row and do not
// roll back sibling rows.
func (s *Service) Ingest(req BulkRequest) (BulkResult, error) {
	prepared := make([]domain.Activity, 0, len(req.Creates)+len(req.Updates))

	for i, a := range req.Creates {
		pa, err := s.prepareCreate(a)
		if err != nil {
			return BulkResult{}, apperr.Wrap(apperr.KindValidation, "activities.Ingest",
				fmt.Sprintf("create row %d failed preparation", i), err)
		}
		prepared = append(prepared, pa)
	}

	linkTransferPairs(prepared)

	updatePrepared := make([]domain.Activity, 0, len(req.Updates))
	for i, a := range req.Updates {
		pa, err := s.prepareUpdate(a)
		if err != nil {
			return BulkResult{}, apperr.Wrap(apperr.KindValidation, "activities.Ingest",
				fmt.Sprintf("update row %d failed preparation", i), err)
		}
		updatePrepared = append(updatePrepared, pa)
	}

	result := BulkResult{}

	for _, a := range prepared {
		if existing, err := s.repo.GetByIdempotencyKey(a.IdempotencyKey); err == nil && existing != nil {
			result.Errors = append(result.Errors, domain.RowError{ID: a.ID, Action: "create", Message: "duplicate of existing activity"})
			continue
		}
		if err := s.repo.Insert(a); err != nil {
			result.Errors = append(result.Errors, domain.RowError{ID: a.ID, Action: "create", Message: err.Error()})
			continue
		}
		result.Inserted++
		s.emitActivityCreated(a)
	}

	for _, a := range updatePrepared {
		if err := s.repo.Update(a); err != nil {
			result.Errors = append(result.Errors, domain.RowError{ID: a.ID, Action: "update", Message: err.Error()})
			continue
		}
		result.Updated++
		s.emitActivityUpdated(a)
	}

	for _, id := range req.DeleteIDs {
		if err := s.repo.Void(id); err != nil {
			result.Errors = append(result.Errors, domain.RowError{ID: id, Action: "delete", Message: err.Error()})
			continue
		}
		result.Deleted++
		if s.events != nil {
			s.events.Emit(events.ActivityDeleted, "activities", &events.ActivityDeletedData{ActivityID: id})
		}
	}

	return result, nil
}

func (s *Service) prepareCreate(a domain.Activity) (domain.Activity, error) {
	if a.AccountID == "" {
		return a, apperr.New(apperr.KindValidation, "activities.prepareCreate", "account_id required")
	}
	if a.ActivityType == "" {
		return a, apperr.New(apperr.KindValidation, "activities.prepareCreate", "activity_type required")
	}
	if a.ActivityDate.IsZero() {
		return a, apperr.New(apperr.KindValidation, "activities.prepareCreate", "activity_date required")
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.ActivityStatusPosted
	}

	assetID, err := s.ResolveAssetID(a.AssetID, a.Symbol, a.ExchangeMIC, a.KindHint, a.EffectiveType(), a.Currency)
	if err != nil {
		return a, err
	}
	a.AssetID = assetID
	a.Symbol, a.ExchangeMIC, a.KindHint = "", "", ""

	NormalizeMinorUnit(&a)

	if err := s.registerImpliedFxPair(a); err != nil {
		s.log.Warn().Err(err).Str("activity_id", a.ID).Msg("fx pair registration failed, continuing")
	}

	if a.IdempotencyKey == "" {
		a.IdempotencyKey = IdempotencyKey(a)
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	return a, nil
}

func (s *Service) prepareUpdate(a domain.Activity) (domain.Activity, error) {
	if a.ID == "" {
		return a, apperr.New(apperr.KindValidation, "activities.prepareUpdate", "id required")
	}

	existing, err := s.repo.GetByID(a.ID)
	if err != nil {
		return a, err
	}
	if existing == nil {
		return a, apperr.New(apperr.KindNotFound, "activities.prepareUpdate", "activity not found").WithIdentifier(a.ID)
	}

	// Preserve fields an update must never clobber.
	a.CreatedAt = existing.CreatedAt
	a.SourceSystem = existing.SourceSystem
	a.SourceRecordID = existing.SourceRecordID
	a.IdempotencyKey = existing.IdempotencyKey
	if a.ActivityTypeOverride == "" {
		a.ActivityTypeOverride = existing.ActivityTypeOverride
	}
	if a.FxRate == nil {
		a.FxRate = existing.FxRate
	}
	if a.Subtype == "" {
		a.Subtype = existing.Subtype
	}
	if a.SettlementDate == nil {
		a.SettlementDate = existing.SettlementDate
	}
	if len(a.Metadata) == 0 {
		a.Metadata = existing.Metadata
	}

	NormalizeMinorUnit(&a)
	a.UpdatedAt = time.Now()

	return a, nil
}

// registerImpliedFxPair registers the FX pair implied by a mismatch between
// activity currency and asset currency; the account currency is not
// compared, so no activity/account pair is registered. Registration failures are
// non-fatal: holdings math falls back to a 1.0 rate and logs a warning.
func (s *Service) registerImpliedFxPair(a domain.Activity) error {
	if s.fx == nil || s.assets == nil {
		return nil
	}
	asset, err := s.assets.GetByID(a.AssetID)
	if err != nil || asset == nil {
		return nil
	}
	if asset.Currency == "" || asset.Currency == a.Currency {
		return nil
	}
	return s.fx.RegisterPair(a.Currency, asset.Currency)
}

func (s *Service) emitActivityCreated(a domain.Activity) {
	if s.events == nil {
		return
	}
	s.events.Emit(events.ActivityCreated, "activities", &events.ActivityCreatedData{
		ActivityID: a.ID, AccountID: a.AccountID, AssetID: a.AssetID,
	})
}

func (s *Service) emitActivityUpdated(a domain.Activity) {
	if s.events == nil {
		return
	}
	s.events.Emit(events.ActivityUpdated, "activities", &events.ActivityUpdatedData{
		ActivityID: a.ID, AccountID: a.AccountID, AssetID: a.AssetID,
	})
}

// transferKey groups TRANSFER_IN/TRANSFER_OUT rows for pairing: same day,
// currency, resolved asset, and amount magnitude.
type transferKey struct {
	date, currency, assetID string
	amount                  float64
}

// linkTransferPairs assigns a shared SourceGroupID to TRANSFER_IN/TRANSFER_OUT
// rows within the same batch that match on (date, currency, asset_id,
// amount), per the CSV import transfer-linking rule. Rows that already carry
// a SourceGroupID (e.g. from a prior import) are left alone. Unmatched
// halves stay independent. Matching dispatches on EffectiveType so a user's
// activity_type_override is respected the same way every other consumer of
// activity classification respects it.
func linkTransferPairs(rows []domain.Activity) {
	ins := map[transferKey][]int{}
	outs := map[transferKey][]int{}

	for i, a := range rows {
		if a.SourceGroupID != "" {
			continue
		}
		k := transferKey{
			date:     a.ActivityDate.UTC().Format("2006-01-02"),
			currency: a.Currency,
			assetID:  a.AssetID,
			amount:   absFloat(a.Amt()),
		}
		switch a.EffectiveType() {
		case domain.ActivityTransferIn:
			ins[k] = append(ins[k], i)
		case domain.ActivityTransferOut:
			outs[k] = append(outs[k], i)
		}
	}

	for k, inIdx := range ins {
		outIdx, ok := outs[k]
		if !ok {
			continue
		}
		pairs := len(inIdx)
		if len(outIdx) < pairs {
			pairs = len(outIdx)
		}
		for p := 0; p < pairs; p++ {
			groupID := uuid.NewString()
			rows[inIdx[p]].SourceGroupID = groupID
			rows[outIdx[p]].SourceGroupID = groupID
		}
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CSVCheckMode selects how CheckCSV resolves asset IDs: CSVCheckDryRun never
// mutates the asset store, while CSVCheckLegacy creates minimal assets and
// registers implied FX pairs exactly as a real Ingest would.
type CSVCheckMode string

const (
	CSVCheckDryRun CSVCheckMode = "DRY_RUN"
	CSVCheckLegacy CSVCheckMode = "LEGACY"
)

// RowCheckResult is one row's outcome from a CSV check pass.
type RowCheckResult struct {
	Index   int
	IsValid bool
	Errors  []string
	AssetID string
}

// CheckCSV validates a batch of prospective activity rows without
// persisting any activities. Each distinct symbol is looked up in the
// asset store once before the per-row pass, but those results are not
// reused: every row's resolution looks its symbol up again, so repeated
// tickers cost one lookup per row. In
// CSVCheckDryRun, an unknown symbol resolves to its synthesized canonical
// ID as a placeholder and no asset or FX side effects occur; in
// CSVCheckLegacy, an unknown symbol creates a minimal asset record and any
// implied FX pair is registered. In either mode an asset-resolution
// failure is added to that row's Errors and marks it is_valid=false.
func (s *Service) CheckCSV(rows []domain.Activity, mode CSVCheckMode) []RowCheckResult {
	results := make([]RowCheckResult, len(rows))

	if s.assets != nil {
		seen := map[string]bool{}
		for _, a := range rows {
			if a.Symbol == "" || seen[a.Symbol] {
				continue
			}
			seen[a.Symbol] = true
			_, _ = s.assets.FindBySymbol(a.Symbol)
		}
	}

	for i, a := range rows {
		var errs []string

		if a.AccountID == "" {
			errs = append(errs, "account_id required")
		}
		if a.ActivityType == "" && a.ActivityTypeOverride == "" {
			errs = append(errs, "activity_type required")
		}
		if a.ActivityDate.IsZero() {
			errs = append(errs, "activity_date required")
		}

		var assetID string
		var resolveErr error
		switch mode {
		case CSVCheckLegacy:
			assetID, resolveErr = s.ResolveAssetID(a.AssetID, a.Symbol, a.ExchangeMIC, a.KindHint, a.EffectiveType(), a.Currency)
			if resolveErr == nil {
				a.AssetID = assetID
				if err := s.registerImpliedFxPair(a); err != nil {
					s.log.Warn().Err(err).Msg("fx pair registration failed during legacy csv check")
				}
			}
		default:
			assetID, resolveErr = s.resolveAssetIDReadOnly(a.AssetID, a.Symbol, a.ExchangeMIC, a.KindHint, a.EffectiveType(), a.Currency)
		}
		if resolveErr != nil {
			errs = append(errs, resolveErr.Error())
		}

		results[i] = RowCheckResult{Index: i, IsValid: len(errs) == 0, Errors: errs, AssetID: assetID}
	}

	return results
}
