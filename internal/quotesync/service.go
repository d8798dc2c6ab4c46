package quotesync

import (
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
)

// StateStore persists QuoteSyncState rows.
type StateStore interface {
	GetByAssetID(assetID string) (*domain.QuoteSyncState, error)
	Upsert(s domain.QuoteSyncState) error
}

// Fetcher performs the actual provider fetch + quote storage for a plan;
// supplied by the caller (typically backed by marketdata.Registry plus a
// quotes repository) so this package stays free of HTTP/storage concerns.
type Fetcher interface {
	FetchAndStore(plan SymbolSyncPlan) (lastQuoteDate time.Time, err error)
}

// Service drives the sync-state machine described in spec §4.2/§4.5.
type Service struct {
	states  StateStore
	fetcher Fetcher
	opts    PlanOptions
	log     zerolog.Logger
}

// NewService builds the quote sync service.
func NewService(states StateStore, fetcher Fetcher, opts PlanOptions, log zerolog.Logger) *Service {
	return &Service{states: states, fetcher: fetcher, opts: opts, log: log.With().Str("service", "quotesync").Logger()}
}

// SyncOne plans and executes a sync pass for one asset, advancing its
// QuoteSyncState on success or failure.
func (s *Service) SyncOne(in AssetSyncInput, mode Mode) error {
	opts := s.opts
	opts.Mode = mode

	plan := Plan(in, opts)
	if plan == nil {
		return nil
	}

	state, err := s.states.GetByAssetID(in.AssetID)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		state = &domain.QuoteSyncState{AssetID: in.AssetID, PreferredProvider: "", IsActive: in.IsActive}
	}

	now := time.Now()
	lastQuoteDate, fetchErr := s.fetcher.FetchAndStore(*plan)
	if fetchErr != nil {
		state.RecordFailure(fetchErr.Error(), now)
		s.log.Warn().Err(fetchErr).Str("asset_id", in.AssetID).Msg("quote sync failed")
	} else {
		state.RecordSuccess(lastQuoteDate, now)
	}

	if err := s.states.Upsert(*state); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return fetchErr
}

// HandleActivityCreated extends an asset's sync range backward to cover a
// newly recorded activity's date, and marks it active, per spec §4.5.
func (s *Service) HandleActivityCreated(assetID string, activityDate time.Time) error {
	state, err := s.states.GetByAssetID(assetID)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		state = &domain.QuoteSyncState{AssetID: assetID}
	}

	state.IsActive = true
	if state.LastQuoteDate != nil && activityDate.Before(*state.LastQuoteDate) {
		state.LastQuoteDate = &activityDate
	}

	return s.states.Upsert(*state)
}

// HandleActivityDeleted triggers a reactive cleanup check: the caller is
// expected to recompute open_qty for the asset and call ReconcilePositions.
func (s *Service) HandleActivityDeleted(assetID string) error {
	s.log.Info().Str("asset_id", assetID).Msg("activity deleted, reconciliation recommended")
	return nil
}

// ReconcilePositions applies the position-status reconciliation rule: assets
// with qty > 0 and previously inactive are reactivated; assets with qty ==
// 0 and previously active are marked inactive with today as their close date.
func (s *Service) ReconcilePositions(openQty map[string]float64) error {
	now := time.Now()
	for assetID, qty := range openQty {
		state, err := s.states.GetByAssetID(assetID)
		if err != nil {
			return fmt.Errorf("load sync state for %s: %w", assetID, err)
		}
		if state == nil {
			state = &domain.QuoteSyncState{AssetID: assetID}
		}

		switch {
		case qty > 0 && !state.IsActive:
			state.IsActive = true
		case qty == 0 && state.IsActive:
			state.IsActive = false
			state.LastSyncedAt = &now
		default:
			continue
		}

		if err := s.states.Upsert(*state); err != nil {
			return fmt.Errorf("save sync state for %s: %w", assetID, err)
		}
	}
	return nil
}
