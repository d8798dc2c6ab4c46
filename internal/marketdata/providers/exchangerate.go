// Package providers adapts third-party quote APIs to marketdata.Provider.
package providers

import (
	"context"
	"time"

	"github.com/aristath/portfolio-engine/internal/apperr"
	"github.com/aristath/portfolio-engine/internal/clients/exchangerate"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/marketdata"
)

// ExchangeRateProvider adapts the exchangerate-api.com client (teacher's
// internal/clients/exchangerate) to the marketdata.Provider trait, serving
// FxRate-kind assets only.
type ExchangeRateProvider struct {
	client *exchangerate.Client
}

// NewExchangeRateProvider wraps an exchangerate client as a market-data provider.
func NewExchangeRateProvider(client *exchangerate.Client) *ExchangeRateProvider {
	return &ExchangeRateProvider{client: client}
}

func (p *ExchangeRateProvider) ID() string { return "exchangerate-api" }

func (p *ExchangeRateProvider) Capabilities() marketdata.Capabilities {
	return marketdata.Capabilities{
		InstrumentKinds:    []domain.AssetKind{domain.AssetKindFxRate},
		Coverage:           marketdata.CoverageGlobalBestEffort,
		SupportsLatest:     true,
		SupportsHistorical: true,
		RateLimit:          marketdata.RateLimit{RPM: 600, Concurrency: 5},
		DefaultPriority:    10,
	}
}

func (p *ExchangeRateProvider) GetLatestQuote(ctx context.Context, symbol string, qc marketdata.QuoteContext) (domain.Quote, error) {
	if len(symbol) != 6 {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindSymbolNotFound, apperr.RetryNever, "exchangerate.GetLatestQuote", "fx symbol must be a 6-letter pair", nil).WithIdentifier(symbol)
	}
	from, to := symbol[:3], symbol[3:]

	rate, err := p.client.GetRate(from, to)
	if err != nil {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindRateLimited, apperr.RetryFailoverWithPenalty, "exchangerate.GetLatestQuote", "rate fetch failed", err)
	}

	now := time.Now()
	return domain.Quote{
		ID: domain.NewQuoteID(qc.AssetID, now, p.ID()), AssetID: qc.AssetID, Timestamp: now,
		Open: rate, High: rate, Low: rate, Close: rate, AdjClose: rate, Volume: 0,
		Currency: to, DataSource: p.ID(), CreatedAt: now,
	}, nil
}

// GetHistoricalQuotes returns one quote per day in [qc.Start, qc.End],
// backed by the client's per-date rate lookup (its own cache and
// latest-rate fallback apply per day). A 6-letter symbol is required, same
// as GetLatestQuote.
func (p *ExchangeRateProvider) GetHistoricalQuotes(ctx context.Context, symbol string, qc marketdata.QuoteContext) ([]domain.Quote, error) {
	if len(symbol) != 6 {
		return nil, apperr.MarketDataError(apperr.SubKindSymbolNotFound, apperr.RetryNever, "exchangerate.GetHistoricalQuotes", "fx symbol must be a 6-letter pair", nil).WithIdentifier(symbol)
	}
	from, to := symbol[:3], symbol[3:]

	if qc.Start.IsZero() || qc.End.Before(qc.Start) {
		return nil, apperr.MarketDataError(apperr.SubKindValidationFailed, apperr.RetryNever, "exchangerate.GetHistoricalQuotes", "requires a valid start/end range", nil)
	}

	var quotes []domain.Quote
	for d := qc.Start; !d.After(qc.End); d = d.AddDate(0, 0, 1) {
		rate, err := p.client.GetRateForDate(from, to, d)
		if err != nil {
			continue
		}
		quotes = append(quotes, domain.Quote{
			ID: domain.NewQuoteID(qc.AssetID, d, p.ID()), AssetID: qc.AssetID, Timestamp: d,
			Open: rate, High: rate, Low: rate, Close: rate, AdjClose: rate, Volume: 0,
			Currency: to, DataSource: p.ID(), CreatedAt: time.Now(),
		})
	}

	if len(quotes) == 0 {
		return nil, apperr.MarketDataError(apperr.SubKindRateLimited, apperr.RetryFailoverWithPenalty, "exchangerate.GetHistoricalQuotes", "no rates available for requested range", nil)
	}
	return quotes, nil
}

func (p *ExchangeRateProvider) Search(ctx context.Context, query string) ([]marketdata.SearchResult, error) {
	return nil, nil
}

func (p *ExchangeRateProvider) GetProfile(ctx context.Context, symbol string, qc marketdata.QuoteContext) (marketdata.Profile, error) {
	return marketdata.Profile{}, apperr.MarketDataError(apperr.SubKindNotSupported, apperr.RetryNextProvider, "exchangerate.GetProfile", "no profile support", nil)
}
