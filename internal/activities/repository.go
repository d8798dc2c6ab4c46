// Package activities turns heterogeneous inputs (CSV rows, broker payloads,
// manual entry) into validated, deduplicated, canonical Activity rows.
package activities

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists activities to the portfolio database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an activity repository over the portfolio database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("repo", "activities").Logger()}
}

const activityColumns = `
	id, account_id, asset_id, activity_type, activity_type_override, subtype, status,
	activity_date, settlement_date, quantity, unit_price, amount, fee, currency, fx_rate,
	notes, metadata, source_system, source_record_id, source_group_id, idempotency_key,
	import_run_id, needs_review, is_user_modified, created_at, updated_at,
	updated_version, origin, tombstone
`

// Insert persists a new activity row.
func (r *Repository) Insert(a domain.Activity) error {
	query := `INSERT INTO activities (` + activityColumns + `) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	)`

	_, err := r.db.Exec(query, activityArgs(a)...)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Update overwrites an existing activity row in place.
func (r *Repository) Update(a domain.Activity) error {
	query := `UPDATE activities SET
		account_id=?, asset_id=?, activity_type=?, activity_type_override=?, subtype=?, status=?,
		activity_date=?, settlement_date=?, quantity=?, unit_price=?, amount=?, fee=?, currency=?,
		fx_rate=?, notes=?, metadata=?, source_system=?, source_record_id=?, source_group_id=?,
		idempotency_key=?, import_run_id=?, needs_review=?, is_user_modified=?, created_at=?,
		updated_at=?, updated_version=?, origin=?, tombstone=?
		WHERE id=?`

	args := activityArgs(a)[1:] // drop id from the front
	args = append(args, a.ID)

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID retrieves an activity by its primary key.
func (r *Repository) GetByID(id string) (*domain.Activity, error) {
	row := r.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &a, nil
}

// GetByIdempotencyKey finds an existing activity with the same dedup key.
func (r *Repository) GetByIdempotencyKey(key string) (*domain.Activity, error) {
	if key == "" {
		return nil, nil
	}
	row := r.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE idempotency_key = ?`, key)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity by idempotency key: %w", err)
	}
	return &a, nil
}

// GetBySourceRecordID finds an existing activity for an upsert-by-provider-id.
func (r *Repository) GetBySourceRecordID(sourceSystem, sourceRecordID string) (*domain.Activity, error) {
	row := r.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE source_system = ? AND source_record_id = ?`, sourceSystem, sourceRecordID)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity by source record: %w", err)
	}
	return &a, nil
}

// ListByAccountFromDate returns an account's non-voided (tombstone = 0)
// activities of any status on or after fromDate, ordered by activity_date
// for replay by the holdings calculator.
func (r *Repository) ListByAccountFromDate(accountID string, fromDate time.Time) ([]domain.Activity, error) {
	rows, err := r.db.Query(
		`SELECT `+activityColumns+` FROM activities
		 WHERE account_id = ? AND activity_date >= ? AND tombstone = 0
		 ORDER BY activity_date ASC`,
		accountID, fromDate.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivityRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Void soft-deletes an activity by marking it a tombstone.
func (r *Repository) Void(id string) error {
	res, err := r.db.Exec(`UPDATE activities SET status = ?, tombstone = 1, updated_at = ? WHERE id = ?`,
		domain.ActivityStatus("VOID"), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("void activity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func activityArgs(a domain.Activity) []interface{} {
	var settlementDate interface{}
	if a.SettlementDate != nil {
		settlementDate = a.SettlementDate.Format(time.RFC3339)
	}
	metadata := a.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	return []interface{}{
		a.ID, a.AccountID, a.AssetID, string(a.ActivityType), a.ActivityTypeOverride, a.Subtype, string(a.Status),
		a.ActivityDate.Format(time.RFC3339), settlementDate, a.Quantity, a.UnitPrice, a.Amount, a.Fee, a.Currency, a.FxRate,
		a.Notes, string(metadata), a.SourceSystem, a.SourceRecordID, a.SourceGroupID, a.IdempotencyKey,
		a.ImportRunID, a.NeedsReview, a.IsUserModified, a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
		a.UpdatedVersion, a.Origin, a.Tombstone,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row *sql.Row) (domain.Activity, error) {
	return doScan(row)
}

func scanActivityRows(rows *sql.Rows) (domain.Activity, error) {
	return doScan(rows)
}

func doScan(s rowScanner) (domain.Activity, error) {
	var a domain.Activity
	var activityDate, createdAt, updatedAt string
	var settlementDate sql.NullString
	var activityTypeOverride, status, metadata string
	var quantity, unitPrice, amount, fee, fxRate sql.NullFloat64

	err := s.Scan(
		&a.ID, &a.AccountID, &a.AssetID, &a.ActivityType, &activityTypeOverride, &a.Subtype, &status,
		&activityDate, &settlementDate, &quantity, &unitPrice, &amount, &fee, &a.Currency, &fxRate,
		&a.Notes, &metadata, &a.SourceSystem, &a.SourceRecordID, &a.SourceGroupID, &a.IdempotencyKey,
		&a.ImportRunID, &a.NeedsReview, &a.IsUserModified, &createdAt, &updatedAt,
		&a.UpdatedVersion, &a.Origin, &a.Tombstone,
	)
	if err != nil {
		return domain.Activity{}, err
	}

	a.ActivityTypeOverride = activityTypeOverride
	a.Status = domain.ActivityStatus(status)
	a.Metadata = json.RawMessage(metadata)
	a.Quantity = nullFloatPtr(quantity)
	a.UnitPrice = nullFloatPtr(unitPrice)
	a.Amount = nullFloatPtr(amount)
	a.Fee = nullFloatPtr(fee)
	a.FxRate = nullFloatPtr(fxRate)

	a.ActivityDate, err = time.Parse(time.RFC3339, activityDate)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("parse activity_date: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if settlementDate.Valid {
		t, err := time.Parse(time.RFC3339, settlementDate.String)
		if err == nil {
			a.SettlementDate = &t
		}
	}

	return a, nil
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
