// Package marketdata routes quote/profile/search requests to the best
// available provider, with bounded failure propagation via a per-provider
// circuit breaker and rate limiter.
package marketdata

import (
	"context"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Coverage describes which instruments a provider is willing to serve.
type Coverage string

const (
	CoverageGlobalBestEffort Coverage = "GlobalBestEffort"
	CoverageUSOnlyStrict     Coverage = "USOnlyStrict"
	CoverageAllowList        Coverage = "AllowList"
)

// RateLimit describes a provider's token-bucket shape.
type RateLimit struct {
	RPM         int           // requests per minute
	Concurrency int           // token bucket burst size
	MinDelay    time.Duration
}

// Capabilities declares what a provider can do and for whom.
type Capabilities struct {
	InstrumentKinds    []domain.AssetKind
	Coverage           Coverage
	AllowedMICs        map[string]bool // only consulted when Coverage == CoverageAllowList
	SupportsLatest     bool
	SupportsHistorical bool
	SupportsSearch     bool
	SupportsProfile    bool
	RateLimit          RateLimit
	DefaultPriority     int // lower sorts first among non-preferred providers
}

// QuoteContext carries everything a provider needs to resolve and fetch a
// quote for one asset.
type QuoteContext struct {
	AssetID           string
	Kind              domain.AssetKind
	Symbol            string
	ExchangeMIC       string
	QuoteCurrency     string
	PreferredProvider string // from the asset's PreferredProvider field, wins ordering
	Historical        bool
	Start, End        time.Time
}

// SearchResult is one hit from a provider or existing-asset search.
type SearchResult struct {
	Symbol      string
	ExchangeMIC string
	Name        string
	Kind        domain.AssetKind
	Currency    string
	Provider    string
	Score       float64
}

// Profile is descriptive metadata about an instrument, used to enrich an
// asset record (name, sector, etc.) independent of its quote history.
type Profile struct {
	Symbol      string
	ExchangeMIC string
	Name        string
	Currency    string
}

// SymbolResolver translates a QuoteContext into a provider-specific symbol,
// consulting the asset's ProviderOverrides before falling back to Symbol.
type SymbolResolver interface {
	Resolve(providerID string, ctx QuoteContext) (string, error)
}

// Provider is the single trait every market-data adapter implements.
// Implementations own HTTP, JSON parsing, and translating provider-specific
// errors into apperr's shared retry_class.
type Provider interface {
	ID() string
	Capabilities() Capabilities
	GetLatestQuote(ctx context.Context, symbol string, qc QuoteContext) (domain.Quote, error)
	GetHistoricalQuotes(ctx context.Context, symbol string, qc QuoteContext) ([]domain.Quote, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
	GetProfile(ctx context.Context, symbol string, qc QuoteContext) (Profile, error)
}
