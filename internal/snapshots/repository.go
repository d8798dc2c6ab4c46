// Package snapshots maintains the per-account AccountStateSnapshot timeline
// and materializes the synthetic TOTAL account across all accounts.
package snapshots

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists snapshots to the portfolio database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a snapshot repository over the portfolio database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("repo", "snapshots").Logger()}
}

type positionsJSON map[string]domain.Position

// Upsert creates or replaces a snapshot row keyed by account_id+snapshot_date.
func (r *Repository) Upsert(s domain.AccountStateSnapshot) error {
	positions, err := json.Marshal(positionsJSON(s.Positions))
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	cash, err := json.Marshal(s.CashBalances)
	if err != nil {
		return fmt.Errorf("marshal cash balances: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO account_state_snapshots (
			id, account_id, snapshot_date, currency, positions, cash_balances,
			cost_basis, net_contribution, net_contribution_base,
			cash_total_account_currency, cash_total_base_currency, calculated_at, source,
			updated_version, origin, tombstone
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, snapshot_date) DO UPDATE SET
			currency=excluded.currency, positions=excluded.positions, cash_balances=excluded.cash_balances,
			cost_basis=excluded.cost_basis, net_contribution=excluded.net_contribution,
			net_contribution_base=excluded.net_contribution_base,
			cash_total_account_currency=excluded.cash_total_account_currency,
			cash_total_base_currency=excluded.cash_total_base_currency,
			calculated_at=excluded.calculated_at, source=excluded.source`,
		s.ID, s.AccountID, s.SnapshotDate.Format("2006-01-02"), s.Currency, string(positions), string(cash),
		s.CostBasis, s.NetContribution, s.NetContributionBase,
		s.CashTotalAccountCurrency, s.CashTotalBaseCurrency, s.CalculatedAt.Format(time.RFC3339), string(s.Source),
		0, "", false,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// GetLatestBefore returns the most recent snapshot for an account on or
// before the given date, or nil when none exists.
func (r *Repository) GetLatestBefore(accountID string, date time.Time) (*domain.AccountStateSnapshot, error) {
	row := r.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM account_state_snapshots
		 WHERE account_id = ? AND snapshot_date <= ?
		 ORDER BY snapshot_date DESC LIMIT 1`,
		accountID, date.Format("2006-01-02"),
	)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &s, nil
}

// DeleteFromDate removes all snapshots for an account on or after fromDate,
// so a recalculation can overwrite that window atomically.
func (r *Repository) DeleteFromDate(accountID string, fromDate time.Time) error {
	_, err := r.db.Exec(
		`DELETE FROM account_state_snapshots WHERE account_id = ? AND snapshot_date >= ?`,
		accountID, fromDate.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("delete snapshots from date: %w", err)
	}
	return nil
}

// ListAccountIDsAsOf returns every distinct account_id with a snapshot on or
// before date, used by TOTAL aggregation to find active accounts.
func (r *Repository) ListAccountIDsAsOf(date time.Time) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT account_id FROM account_state_snapshots
		 WHERE snapshot_date <= ? AND account_id != ?`,
		date.Format("2006-01-02"), domain.TotalAccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list account ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListDistinctDates returns every distinct snapshot_date across all
// non-TOTAL accounts, used to drive the TOTAL aggregation loop.
func (r *Repository) ListDistinctDates() ([]time.Time, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT snapshot_date FROM account_state_snapshots
		 WHERE account_id != ? ORDER BY snapshot_date ASC`,
		domain.TotalAccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list distinct dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountNonCalculated reports how many non-Calculated snapshots exist for an
// account, and whether any Calculated snapshot exists — used by the
// synthetic-history-backfill decision.
func (r *Repository) CountNonCalculated(accountID string) (nonCalculated int, hasCalculated bool, err error) {
	row := r.db.QueryRow(
		`SELECT
			SUM(CASE WHEN source != ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN source = ? THEN 1 ELSE 0 END)
		 FROM account_state_snapshots WHERE account_id = ?`,
		string(domain.SnapshotSourceCalculated), string(domain.SnapshotSourceCalculated), accountID,
	)
	var nonCalc, calc sql.NullInt64
	if err := row.Scan(&nonCalc, &calc); err != nil {
		return 0, false, fmt.Errorf("count non-calculated snapshots: %w", err)
	}
	return int(nonCalc.Int64), calc.Int64 > 0, nil
}

// GetEarliest returns the earliest snapshot for an account, or nil.
func (r *Repository) GetEarliest(accountID string) (*domain.AccountStateSnapshot, error) {
	row := r.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM account_state_snapshots
		 WHERE account_id = ? ORDER BY snapshot_date ASC LIMIT 1`, accountID,
	)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get earliest snapshot: %w", err)
	}
	return &s, nil
}

const snapshotColumns = `
	id, account_id, snapshot_date, currency, positions, cash_balances,
	cost_basis, net_contribution, net_contribution_base,
	cash_total_account_currency, cash_total_base_currency, calculated_at, source
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row *sql.Row) (domain.AccountStateSnapshot, error) { return doScan(row) }

func doScan(s rowScanner) (domain.AccountStateSnapshot, error) {
	var snap domain.AccountStateSnapshot
	var snapshotDate, calculatedAt, source, positions, cash string

	err := s.Scan(
		&snap.ID, &snap.AccountID, &snapshotDate, &snap.Currency, &positions, &cash,
		&snap.CostBasis, &snap.NetContribution, &snap.NetContributionBase,
		&snap.CashTotalAccountCurrency, &snap.CashTotalBaseCurrency, &calculatedAt, &source,
	)
	if err != nil {
		return domain.AccountStateSnapshot{}, err
	}

	snap.SnapshotDate, _ = time.Parse("2006-01-02", snapshotDate)
	snap.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	snap.Source = domain.SnapshotSource(source)

	snap.Positions = map[string]domain.Position{}
	_ = json.Unmarshal([]byte(positions), &snap.Positions)
	snap.CashBalances = map[string]float64{}
	_ = json.Unmarshal([]byte(cash), &snap.CashBalances)

	return snap, nil
}
