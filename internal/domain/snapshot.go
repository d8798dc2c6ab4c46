package domain

import "time"

// TotalAccountID is the synthetic account ID for the portfolio-wide
// aggregate snapshot produced by the snapshot aggregator.
const TotalAccountID = "TOTAL"

// SnapshotSource records how a snapshot came to exist.
type SnapshotSource string

const (
	SnapshotSourceCalculated    SnapshotSource = "Calculated"
	SnapshotSourceBrokerImported SnapshotSource = "BrokerImported"
	SnapshotSourceSynthetic     SnapshotSource = "Synthetic"
	SnapshotSourceManual        SnapshotSource = "Manual"
)

// AccountStateSnapshot is the end-of-day ledger for one account, or the
// synthetic TOTAL account produced by the aggregator. ID is
// account_id_YYYY-MM-DD (account ID and snapshot date joined by "_").
//
// Cash balances are booked in activity currency, never account currency;
// the two summary cash totals below are recomputed once, at end of day,
// from CashBalances.
type AccountStateSnapshot struct {
	ID           string
	AccountID    string
	SnapshotDate time.Time
	Currency     string

	Positions     map[string]Position // asset_id -> Position
	CashBalances  map[string]float64  // currency -> amount, in that currency

	CostBasis               float64 // account currency, converted from each position's currency at snapshot-date FX
	NetContribution         float64 // account currency
	NetContributionBase     float64 // process base currency
	CashTotalAccountCurrency float64
	CashTotalBaseCurrency    float64

	CalculatedAt time.Time
	Source       SnapshotSource
}

// NewSnapshotID builds the canonical snapshot ID for an account/date pair.
func NewSnapshotID(accountID string, date time.Time) string {
	return accountID + "_" + date.Format("2006-01-02")
}

// HoldingsCalculationWarning records a non-fatal issue encountered while
// producing a snapshot — an FX lookup that fell back to an unconverted
// amount, a SELL that exceeded available lots, and similar cases the
// calculator must never treat as fatal.
type HoldingsCalculationWarning struct {
	ActivityID string
	AccountID  string
	Date       time.Time
	Message    string
}

// HoldingsCalculationResult is the output of one day's (or one batch's)
// holdings calculation: the snapshot plus whatever warnings accumulated
// while producing it.
type HoldingsCalculationResult struct {
	Snapshot *AccountStateSnapshot
	Warnings []HoldingsCalculationWarning
}
