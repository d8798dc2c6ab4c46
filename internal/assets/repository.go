// Package assets persists canonical Asset rows and resolves symbols against
// them. A symbol unknown locally is not searched for with any market-data
// provider.
package assets

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists assets to the portfolio database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an asset repository over the portfolio database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("repo", "assets").Logger()}
}

// Upsert creates or replaces an asset row keyed by its canonical ID.
func (r *Repository) Upsert(a domain.Asset) error {
	overrides, err := json.Marshal(a.ProviderOverrides)
	if err != nil {
		return fmt.Errorf("marshal provider overrides: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO assets (id, kind, symbol, exchange_mic, currency, preferred_provider,
			provider_overrides, created_at, updated_at, updated_version, origin, tombstone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, symbol=excluded.symbol, exchange_mic=excluded.exchange_mic,
			currency=excluded.currency, preferred_provider=excluded.preferred_provider,
			provider_overrides=excluded.provider_overrides, updated_at=excluded.updated_at,
			updated_version=excluded.updated_version, origin=excluded.origin, tombstone=excluded.tombstone`,
		a.ID, string(a.Kind), a.Symbol, a.ExchangeMIC, a.Currency, a.PreferredProvider,
		string(overrides), a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
		a.UpdatedVersion, a.Origin, a.Tombstone,
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// GetByID retrieves an asset by its canonical ID.
func (r *Repository) GetByID(id string) (*domain.Asset, error) {
	row := r.db.QueryRow(
		`SELECT id, kind, symbol, exchange_mic, currency, preferred_provider, provider_overrides,
			created_at, updated_at, updated_version, origin, tombstone
		 FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &a, nil
}

// FindBySymbol looks up assets by raw (pre-canonicalization) symbol, the
// first step of asset-ID resolution against already-known assets.
func (r *Repository) FindBySymbol(symbol string) ([]domain.Asset, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, symbol, exchange_mic, currency, preferred_provider, provider_overrides,
			created_at, updated_at, updated_version, origin, tombstone
		 FROM assets WHERE symbol = ? AND tombstone = 0`, symbol)
	if err != nil {
		return nil, fmt.Errorf("find asset by symbol: %w", err)
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAssetRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row *sql.Row) (domain.Asset, error)       { return doScan(row) }
func scanAssetRows(rows *sql.Rows) (domain.Asset, error) { return doScan(rows) }

func doScan(s rowScanner) (domain.Asset, error) {
	var a domain.Asset
	var kind, createdAt, updatedAt, overrides string

	err := s.Scan(
		&a.ID, &kind, &a.Symbol, &a.ExchangeMIC, &a.Currency, &a.PreferredProvider, &overrides,
		&createdAt, &updatedAt, &a.UpdatedVersion, &a.Origin, &a.Tombstone,
	)
	if err != nil {
		return domain.Asset{}, err
	}

	a.Kind = domain.AssetKind(kind)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if overrides != "" {
		_ = json.Unmarshal([]byte(overrides), &a.ProviderOverrides)
	}

	return a, nil
}
