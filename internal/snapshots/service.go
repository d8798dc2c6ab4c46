package snapshots

import (
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/holdings"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// ActivityLister supplies an account's activities from a date forward for
// replay by the calculator. RecalculateAccount passes them on as returned,
// with no split adjustment.
type ActivityLister interface {
	ListByAccountFromDate(accountID string, fromDate time.Time) ([]domain.Activity, error)
}

// AssetCurrencyLookup resolves an asset's listing currency for TOTAL
// aggregation's position merge.
type AssetCurrencyLookup interface {
	Lookup(assetID string) (holdings.AssetInfo, error)
}

// Service maintains per-account snapshot timelines and the TOTAL aggregate.
type Service struct {
	repo         *Repository
	activities   ActivityLister
	calc         *Calculator
	assets       AssetCurrencyLookup
	fx           *money.Service
	baseCurrency string
	log          zerolog.Logger
}

// Calculator is the holdings calculator interface the service replays
// activities through; it's a type alias so callers can pass *holdings.Calculator.
type Calculator = holdings.Calculator

// NewService builds the snapshot service.
func NewService(repo *Repository, activities ActivityLister, calc *Calculator, assets AssetCurrencyLookup, fx *money.Service, baseCurrency string, log zerolog.Logger) *Service {
	return &Service{
		repo: repo, activities: activities, calc: calc, assets: assets, fx: fx, baseCurrency: baseCurrency,
		log: log.With().Str("service", "snapshots").Logger(),
	}
}

// RecalculateAccount replays every posted activity from startDate forward
// and overwrites the account's snapshot timeline in that window atomically.
func (s *Service) RecalculateAccount(accountID string, accountCurrency string, startDate, through time.Time) ([]domain.HoldingsCalculationWarning, error) {
	prior, err := s.repo.GetLatestBefore(accountID, startDate.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("load prior snapshot: %w", err)
	}

	if err := s.repo.DeleteFromDate(accountID, startDate); err != nil {
		return nil, fmt.Errorf("clear snapshot window: %w", err)
	}

	activities, err := s.activities.ListByAccountFromDate(accountID, startDate)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	byDate := map[string][]domain.Activity{}
	for _, a := range activities {
		day := a.ActivityDate.Format("2006-01-02")
		byDate[day] = append(byDate[day], a)
	}

	var allWarnings []domain.HoldingsCalculationWarning
	current := prior
	for d := startDate; !d.After(through); d = d.AddDate(0, 0, 1) {
		dayActivities := byDate[d.Format("2006-01-02")]
		result := s.calc.Calculate(current, accountID, d, accountCurrency, dayActivities)
		if err := s.repo.Upsert(*result.Snapshot); err != nil {
			return allWarnings, fmt.Errorf("save snapshot %s: %w", result.Snapshot.ID, err)
		}
		allWarnings = append(allWarnings, result.Warnings...)
		current = result.Snapshot
	}

	return allWarnings, nil
}

// ImportHoldings synthesizes a BrokerImported snapshot directly from a
// broker-supplied balance + position set, bypassing activity replay. It
// skips saving when the content is unchanged from the latest snapshot.
func (s *Service) ImportHoldings(snap domain.AccountStateSnapshot) (saved bool, err error) {
	snap.Source = domain.SnapshotSourceBrokerImported
	snap.CalculatedAt = time.Now()
	snap.ID = domain.NewSnapshotID(snap.AccountID, snap.SnapshotDate)

	latest, err := s.repo.GetLatestBefore(snap.AccountID, snap.SnapshotDate)
	if err != nil {
		return false, fmt.Errorf("load latest snapshot: %w", err)
	}
	if latest != nil && contentEqual(*latest, snap) {
		return false, nil
	}

	if err := s.repo.Upsert(snap); err != nil {
		return false, fmt.Errorf("save imported snapshot: %w", err)
	}
	return true, nil
}

func contentEqual(a, b domain.AccountStateSnapshot) bool {
	if len(a.Positions) != len(b.Positions) || len(a.CashBalances) != len(b.CashBalances) {
		return false
	}
	for id, pa := range a.Positions {
		pb, ok := b.Positions[id]
		if !ok || pa.Quantity != pb.Quantity || pa.TotalCostBasis != pb.TotalCostBasis || pa.Currency != pb.Currency {
			return false
		}
	}
	for ccy, amt := range a.CashBalances {
		if b.CashBalances[ccy] != amt {
			return false
		}
	}
	return a.CostBasis == b.CostBasis
}

// BackfillSyntheticHistory creates a snapshot dated 3 months before the
// earliest existing one when an account has exactly one non-calculated
// snapshot and no calculated history yet, so downstream charts have two
// endpoints. It is a no-op otherwise.
func (s *Service) BackfillSyntheticHistory(accountID string) error {
	nonCalc, hasCalc, err := s.repo.CountNonCalculated(accountID)
	if err != nil {
		return fmt.Errorf("count snapshots: %w", err)
	}
	if nonCalc != 1 || hasCalc {
		return nil
	}

	earliest, err := s.repo.GetEarliest(accountID)
	if err != nil {
		return fmt.Errorf("get earliest snapshot: %w", err)
	}
	if earliest == nil {
		return nil
	}

	clone := *earliest
	clone.SnapshotDate = earliest.SnapshotDate.AddDate(0, -3, 0)
	clone.ID = domain.NewSnapshotID(accountID, clone.SnapshotDate)
	clone.Source = domain.SnapshotSourceSynthetic
	clone.CalculatedAt = time.Now()

	return s.repo.Upsert(clone)
}

// AggregateTotal rebuilds the synthetic TOTAL snapshot for every distinct
// date that appears across all accounts' timelines.
func (s *Service) AggregateTotal() error {
	dates, err := s.repo.ListDistinctDates()
	if err != nil {
		return fmt.Errorf("list distinct dates: %w", err)
	}

	for _, date := range dates {
		accountIDs, err := s.repo.ListAccountIDsAsOf(date)
		if err != nil {
			return fmt.Errorf("list account ids: %w", err)
		}

		total, err := s.aggregateOneDate(date, accountIDs)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", date.Format("2006-01-02"), err)
		}
		if err := s.repo.Upsert(*total); err != nil {
			return fmt.Errorf("save total snapshot %s: %w", date.Format("2006-01-02"), err)
		}
	}

	return nil
}

func (s *Service) aggregateOneDate(date time.Time, accountIDs []string) (*domain.AccountStateSnapshot, error) {
	total := &domain.AccountStateSnapshot{
		ID: domain.NewSnapshotID(domain.TotalAccountID, date), AccountID: domain.TotalAccountID,
		SnapshotDate: date, Currency: s.baseCurrency,
		Positions: map[string]domain.Position{}, CashBalances: map[string]float64{},
		Source: domain.SnapshotSourceCalculated, CalculatedAt: time.Now(),
	}

	cashByCurrency := map[string][]float64{}
	var costBasisTerms, netContributionTerms []float64

	for _, accountID := range accountIDs {
		latest, err := s.repo.GetLatestBefore(accountID, date)
		if err != nil || latest == nil {
			continue
		}

		for ccy, amt := range latest.CashBalances {
			cashByCurrency[ccy] = append(cashByCurrency[ccy], amt)
		}

		for assetID, pos := range latest.Positions {
			merged, ok := total.Positions[assetID]
			if !ok {
				merged = domain.Position{ID: assetID + "||" + domain.TotalAccountID, AssetID: assetID, AccountID: domain.TotalAccountID, Currency: pos.Currency, InceptionDate: pos.InceptionDate}
			}
			merged.Lots = append(merged.Lots, retagLots(pos.Lots, merged.ID)...)
			if pos.InceptionDate.Before(merged.InceptionDate) || merged.InceptionDate.IsZero() {
				merged.InceptionDate = pos.InceptionDate
			}
			total.Positions[assetID] = recomputePosition(merged)
		}

		costBasis, _ := s.fx.Convert(latest.CostBasis, latest.Currency, s.baseCurrency, date)
		netContribution, _ := s.fx.Convert(latest.NetContribution, latest.Currency, s.baseCurrency, date)
		costBasisTerms = append(costBasisTerms, costBasis)
		netContributionTerms = append(netContributionTerms, netContribution)
	}

	total.CostBasis = floats.Sum(costBasisTerms)
	total.NetContributionBase = floats.Sum(netContributionTerms)

	var baseCashTerms []float64
	for ccy, amounts := range cashByCurrency {
		total.CashBalances[ccy] = floats.Sum(amounts)
		converted, _ := s.fx.Convert(total.CashBalances[ccy], ccy, s.baseCurrency, date)
		baseCashTerms = append(baseCashTerms, converted)
	}
	total.CashTotalBaseCurrency = floats.Sum(baseCashTerms)
	total.CashTotalAccountCurrency = total.CashTotalBaseCurrency

	return total, nil
}

func retagLots(lots []domain.Lot, positionID string) []domain.Lot {
	out := make([]domain.Lot, len(lots))
	for i, l := range lots {
		l.PositionID = positionID
		out[i] = l
	}
	return out
}

func recomputePosition(p domain.Position) domain.Position {
	var qty, cost float64
	for _, l := range p.Lots {
		qty += l.Quantity
		cost += l.CostBasis
	}
	p.Quantity = qty
	p.TotalCostBasis = cost
	if qty != 0 {
		p.AverageCost = cost / qty
	}
	return p
}
