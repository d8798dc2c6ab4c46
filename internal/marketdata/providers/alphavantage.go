package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/portfolio-engine/internal/apperr"
	"github.com/aristath/portfolio-engine/internal/clientdata"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/marketdata"
	"github.com/rs/zerolog"
)

// AlphaVantageProvider adapts the Alpha Vantage REST API to
// marketdata.Provider, for Security and Crypto kinds.
type AlphaVantageProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewAlphaVantageProvider builds the adapter. A zero-value apiKey means the
// provider was never configured; callers should not register it in that case.
func NewAlphaVantageProvider(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey: apiKey, baseURL: "https://www.alphavantage.co/query",
		client: &http.Client{Timeout: 15 * time.Second}, cacheRepo: cacheRepo,
		log: log.With().Str("client", "alphavantage").Logger(),
	}
}

func (p *AlphaVantageProvider) ID() string { return "alphavantage" }

func (p *AlphaVantageProvider) Capabilities() marketdata.Capabilities {
	return marketdata.Capabilities{
		InstrumentKinds: []domain.AssetKind{domain.AssetKindSecurity, domain.AssetKindCrypto},
		Coverage:        marketdata.CoverageGlobalBestEffort,
		SupportsLatest:  true, SupportsHistorical: true, SupportsSearch: true,
		RateLimit:       marketdata.RateLimit{RPM: 5, Concurrency: 1, MinDelay: 12 * time.Second},
		DefaultPriority: 5,
	}
}

type avQuoteEnvelope struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Open   string `json:"02. open"`
		High   string `json:"03. high"`
		Low    string `json:"04. low"`
		Close  string `json:"05. price"`
		Volume string `json:"06. volume"`
	} `json:"Global Quote"`
}

func (p *AlphaVantageProvider) GetLatestQuote(ctx context.Context, symbol string, qc marketdata.QuoteContext) (domain.Quote, error) {
	url := fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s&apikey=%s", p.baseURL, symbol, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindSymbolNotFound, apperr.RetryNever, "alphavantage.GetLatestQuote", "build request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindRateLimited, apperr.RetryFailoverWithPenalty, "alphavantage.GetLatestQuote", "request failed", err)
	}
	defer resp.Body.Close()

	var env avQuoteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindValidationFailed, apperr.RetryFailoverWithPenalty, "alphavantage.GetLatestQuote", "parse response", err)
	}
	if env.GlobalQuote.Symbol == "" {
		return domain.Quote{}, apperr.MarketDataError(apperr.SubKindSymbolNotFound, apperr.RetryNextProvider, "alphavantage.GetLatestQuote", "symbol not found", nil).WithIdentifier(symbol)
	}

	now := time.Now()
	return domain.Quote{
		ID: domain.NewQuoteID(qc.AssetID, now, p.ID()), AssetID: qc.AssetID, Timestamp: now,
		Open: parseFloat(env.GlobalQuote.Open), High: parseFloat(env.GlobalQuote.High),
		Low: parseFloat(env.GlobalQuote.Low), Close: parseFloat(env.GlobalQuote.Close),
		AdjClose: parseFloat(env.GlobalQuote.Close), Volume: parseFloat(env.GlobalQuote.Volume),
		Currency: qc.QuoteCurrency, DataSource: p.ID(), CreatedAt: now,
	}, nil
}

type avSeriesEnvelope struct {
	TimeSeries map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

func (p *AlphaVantageProvider) GetHistoricalQuotes(ctx context.Context, symbol string, qc marketdata.QuoteContext) ([]domain.Quote, error) {
	url := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=full&apikey=%s", p.baseURL, symbol, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.MarketDataError(apperr.SubKindSymbolNotFound, apperr.RetryNever, "alphavantage.GetHistoricalQuotes", "build request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.MarketDataError(apperr.SubKindRateLimited, apperr.RetryFailoverWithPenalty, "alphavantage.GetHistoricalQuotes", "request failed", err)
	}
	defer resp.Body.Close()

	var env avSeriesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apperr.MarketDataError(apperr.SubKindValidationFailed, apperr.RetryFailoverWithPenalty, "alphavantage.GetHistoricalQuotes", "parse response", err)
	}

	var quotes []domain.Quote
	for dateStr, bar := range env.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if !qc.Start.IsZero() && date.Before(qc.Start) {
			continue
		}
		if !qc.End.IsZero() && date.After(qc.End) {
			continue
		}
		quotes = append(quotes, domain.Quote{
			ID: domain.NewQuoteID(qc.AssetID, date, p.ID()), AssetID: qc.AssetID, Timestamp: date,
			Open: parseFloat(bar.Open), High: parseFloat(bar.High), Low: parseFloat(bar.Low),
			Close: parseFloat(bar.Close), AdjClose: parseFloat(bar.Close), Volume: parseFloat(bar.Volume),
			Currency: qc.QuoteCurrency, DataSource: p.ID(), CreatedAt: time.Now(),
		})
	}
	return quotes, nil
}

type avSearchEnvelope struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Currency string `json:"8. currency"`
		Score    string `json:"9. matchScore"`
	} `json:"bestMatches"`
}

func (p *AlphaVantageProvider) Search(ctx context.Context, query string) ([]marketdata.SearchResult, error) {
	url := fmt.Sprintf("%s?function=SYMBOL_SEARCH&keywords=%s&apikey=%s", p.baseURL, query, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env avSearchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}

	out := make([]marketdata.SearchResult, 0, len(env.BestMatches))
	for _, m := range env.BestMatches {
		out = append(out, marketdata.SearchResult{
			Symbol: m.Symbol, Name: m.Name, Currency: m.Currency,
			Kind: domain.AssetKindSecurity, Provider: p.ID(), Score: parseFloat(m.Score),
		})
	}
	return out, nil
}

func (p *AlphaVantageProvider) GetProfile(ctx context.Context, symbol string, qc marketdata.QuoteContext) (marketdata.Profile, error) {
	return marketdata.Profile{}, apperr.MarketDataError(apperr.SubKindNotSupported, apperr.RetryNextProvider, "alphavantage.GetProfile", "no profile endpoint wired", nil)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
