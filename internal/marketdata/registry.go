package marketdata

import (
	"context"
	"sort"
	"sync"

	"github.com/aristath/portfolio-engine/internal/apperr"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type providerEntry struct {
	provider Provider
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
}

// Registry routes quote/profile/search requests across registered providers
// using the ordering and failover algorithm of spec §4.4.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]*providerEntry
	userPriority map[string]int // operator-configured override, wins over provider default
	resolver     SymbolResolver
	log          zerolog.Logger
}

// NewRegistry builds an empty provider registry.
func NewRegistry(resolver SymbolResolver, log zerolog.Logger) *Registry {
	return &Registry{
		providers:    map[string]*providerEntry{},
		userPriority: map[string]int{},
		resolver:     resolver,
		log:          log.With().Str("component", "marketdata.Registry").Logger(),
	}
}

// Register adds a provider to the registry, giving it its own circuit
// breaker and rate limiter.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	caps := p.Capabilities()
	r.providers[p.ID()] = &providerEntry{
		provider: p,
		breaker:  NewCircuitBreaker(5, breakerCooldown),
		limiter:  newTokenBucket(caps.RateLimit),
	}
}

// SetPriority overrides a provider's ordering priority; lower sorts first.
func (r *Registry) SetPriority(providerID string, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userPriority[providerID] = priority
}

// ResetCircuit force-closes a provider's breaker, for manual operator
// intervention.
func (r *Registry) ResetCircuit(providerID string) error {
	r.mu.RLock()
	entry, ok := r.providers[providerID]
	r.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "marketdata.ResetCircuit", "unknown provider").WithIdentifier(providerID)
	}
	entry.breaker.Reset()
	return nil
}

// candidates returns providers eligible for qc, in selection order, plus the
// diagnostics of who was skipped and why.
func (r *Registry) candidates(qc QuoteContext, requireHistorical bool) ([]*providerEntry, []SkippedProvider) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		entry    *providerEntry
		priority int
	}
	var eligible []scored
	var skipped []SkippedProvider

	for id, entry := range r.providers {
		caps := entry.provider.Capabilities()

		if !supportsKind(caps, qc.Kind) {
			skipped = append(skipped, SkippedProvider{ProviderID: id, Reason: SkipUnsupportedKind})
			continue
		}
		if requireHistorical && !caps.SupportsHistorical {
			skipped = append(skipped, SkippedProvider{ProviderID: id, Reason: SkipUnsupportedKind})
			continue
		}
		if !requireHistorical && !caps.SupportsLatest {
			skipped = append(skipped, SkippedProvider{ProviderID: id, Reason: SkipUnsupportedKind})
			continue
		}
		if !coversContext(caps, qc) {
			skipped = append(skipped, SkippedProvider{ProviderID: id, Reason: SkipCoverageMiss})
			continue
		}
		if entry.breaker.IsOpen() {
			skipped = append(skipped, SkippedProvider{ProviderID: id, Reason: SkipCircuitOpen})
			continue
		}

		priority := caps.DefaultPriority
		if p, ok := r.userPriority[id]; ok {
			priority = p
		}
		if qc.PreferredProvider == id {
			priority = -1 << 30 // always first
		}
		eligible = append(eligible, scored{entry: entry, priority: priority})
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].priority < eligible[j].priority })

	out := make([]*providerEntry, len(eligible))
	for i, s := range eligible {
		out[i] = s.entry
	}
	return out, skipped
}

func supportsKind(caps Capabilities, kind domain.AssetKind) bool {
	for _, k := range caps.InstrumentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func coversContext(caps Capabilities, qc QuoteContext) bool {
	switch caps.Coverage {
	case CoverageAllowList:
		return caps.AllowedMICs[qc.ExchangeMIC]
	case CoverageUSOnlyStrict:
		return qc.ExchangeMIC == "XNAS" || qc.ExchangeMIC == "XNYS" || qc.ExchangeMIC == ""
	default: // GlobalBestEffort accepts unknown MICs
		return true
	}
}

// GetLatestQuote attempts providers in order, failing over per each error's
// retry_class, and returns the first valid quote along with diagnostics.
func (r *Registry) GetLatestQuote(ctx context.Context, qc QuoteContext) (domain.Quote, FetchDiagnostics, error) {
	entries, skipped := r.candidates(qc, false)
	diag := FetchDiagnostics{Skipped: skipped}

	if len(entries) == 0 {
		return domain.Quote{}, diag, apperr.MarketDataError(apperr.SubKindNoProvidersAvailable, apperr.RetryNever, "marketdata.GetLatestQuote", "no providers available", nil)
	}

	for _, entry := range entries {
		id := entry.provider.ID()
		diag.Considered = append(diag.Considered, id)

		symbol, err := r.resolveSymbol(id, qc)
		if err != nil {
			diag.Skipped = append(diag.Skipped, SkippedProvider{ProviderID: id, Reason: SkipResolutionFailed})
			continue
		}

		if err := acquireSlot(ctx, entry.limiter, entry.provider.Capabilities().RateLimit.MinDelay); err != nil {
			return domain.Quote{}, diag, err
		}

		quote, err := entry.provider.GetLatestQuote(ctx, symbol, qc)
		if err == nil {
			if !validQuote(quote, qc) {
				err = apperr.MarketDataError(apperr.SubKindValidationFailed, apperr.RetryFailoverWithPenalty, "marketdata.GetLatestQuote", "quote failed validation", nil)
			}
		}
		if err == nil {
			entry.breaker.RecordSuccess()
			diag.Succeeded = id
			return quote, diag, nil
		}

		diag.Errored = append(diag.Errored, ErroredProvider{ProviderID: id, Err: err})
		switch apperr.RetryClassOf(err) {
		case apperr.RetryNever:
			return domain.Quote{}, diag, err
		case apperr.RetryNextProvider:
			continue
		default: // FailoverWithPenalty, CircuitOpen
			entry.breaker.RecordFailure()
			continue
		}
	}

	return domain.Quote{}, diag, apperr.MarketDataError(apperr.SubKindAllProvidersFailed, apperr.RetryNever, "marketdata.GetLatestQuote", "all providers failed", nil)
}

// GetHistoricalQuotes mirrors GetLatestQuote for a date-ranged fetch. A
// mixed valid/invalid result returns just the valid subset rather than
// failing the whole provider.
func (r *Registry) GetHistoricalQuotes(ctx context.Context, qc QuoteContext) ([]domain.Quote, FetchDiagnostics, error) {
	entries, skipped := r.candidates(qc, true)
	diag := FetchDiagnostics{Skipped: skipped}

	if len(entries) == 0 {
		return nil, diag, apperr.MarketDataError(apperr.SubKindNoProvidersAvailable, apperr.RetryNever, "marketdata.GetHistoricalQuotes", "no providers available", nil)
	}

	for _, entry := range entries {
		id := entry.provider.ID()
		diag.Considered = append(diag.Considered, id)

		symbol, err := r.resolveSymbol(id, qc)
		if err != nil {
			diag.Skipped = append(diag.Skipped, SkippedProvider{ProviderID: id, Reason: SkipResolutionFailed})
			continue
		}

		if err := acquireSlot(ctx, entry.limiter, entry.provider.Capabilities().RateLimit.MinDelay); err != nil {
			return nil, diag, err
		}

		quotes, err := entry.provider.GetHistoricalQuotes(ctx, symbol, qc)
		if err == nil {
			valid := filterValidQuotes(quotes, qc)
			if len(valid) == 0 && len(quotes) > 0 {
				err = apperr.MarketDataError(apperr.SubKindValidationFailed, apperr.RetryFailoverWithPenalty, "marketdata.GetHistoricalQuotes", "all quotes failed validation", nil)
			} else {
				entry.breaker.RecordSuccess()
				diag.Succeeded = id
				return valid, diag, nil
			}
		}

		diag.Errored = append(diag.Errored, ErroredProvider{ProviderID: id, Err: err})
		switch apperr.RetryClassOf(err) {
		case apperr.RetryNever:
			return nil, diag, err
		case apperr.RetryNextProvider:
			continue
		default:
			entry.breaker.RecordFailure()
			continue
		}
	}

	return nil, diag, apperr.MarketDataError(apperr.SubKindAllProvidersFailed, apperr.RetryNever, "marketdata.GetHistoricalQuotes", "all providers failed", nil)
}

func (r *Registry) resolveSymbol(providerID string, qc QuoteContext) (string, error) {
	if r.resolver == nil {
		return qc.Symbol, nil
	}
	return r.resolver.Resolve(providerID, qc)
}

func validQuote(q domain.Quote, qc QuoteContext) bool {
	if q.Close <= 0 {
		return false
	}
	if q.High < q.Low || q.High < q.Close || q.Low > q.Close {
		return false
	}
	if q.Volume == 0 && qc.Kind != domain.AssetKindFxRate {
		return false
	}
	return true
}

func filterValidQuotes(quotes []domain.Quote, qc QuoteContext) []domain.Quote {
	var out []domain.Quote
	for _, q := range quotes {
		if validQuote(q, qc) {
			out = append(out, q)
		}
	}
	return out
}
