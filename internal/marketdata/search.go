package marketdata

import (
	"context"
	"sort"
)

// ExistingAssetSearcher looks up already-known assets for a query, ranked
// first in merged search results.
type ExistingAssetSearcher interface {
	Search(query string) ([]SearchResult, error)
}

// Search merges existing-asset hits (ranked first) with provider hits,
// deduplicating by (symbol, exchange_mic) and ordering the remainder by
// score descending.
func (r *Registry) Search(ctx context.Context, query string, existing ExistingAssetSearcher) ([]SearchResult, error) {
	seen := map[string]bool{}
	var out []SearchResult

	if existing != nil {
		hits, err := existing.Search(query)
		if err == nil {
			for _, h := range hits {
				key := h.Symbol + "|" + h.ExchangeMIC
				if !seen[key] {
					seen[key] = true
					out = append(out, h)
				}
			}
		}
	}

	r.mu.RLock()
	entries := make([]*providerEntry, 0, len(r.providers))
	for _, e := range r.providers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var providerHits []SearchResult
	for _, entry := range entries {
		if !entry.provider.Capabilities().SupportsSearch || entry.breaker.IsOpen() {
			continue
		}
		hits, err := entry.provider.Search(ctx, query)
		if err != nil {
			entry.breaker.RecordFailure()
			continue
		}
		entry.breaker.RecordSuccess()
		for _, h := range hits {
			key := h.Symbol + "|" + h.ExchangeMIC
			if !seen[key] {
				seen[key] = true
				providerHits = append(providerHits, h)
			}
		}
	}

	sort.SliceStable(providerHits, func(i, j int) bool { return providerHits[i].Score > providerHits[j].Score })
	return append(out, providerHits...), nil
}

// GetProfile resolves a symbol via the same resolver used for quotes, so a
// provider like Yahoo receives "VFV.TO" when the stored MIC is XTSE.
func (r *Registry) GetProfile(ctx context.Context, qc QuoteContext) (Profile, error) {
	entries, _ := r.candidates(qc, false)
	for _, entry := range entries {
		if !entry.provider.Capabilities().SupportsProfile {
			continue
		}
		symbol, err := r.resolveSymbol(entry.provider.ID(), qc)
		if err != nil {
			continue
		}
		profile, err := entry.provider.GetProfile(ctx, symbol, qc)
		if err != nil {
			entry.breaker.RecordFailure()
			continue
		}
		entry.breaker.RecordSuccess()
		return profile, nil
	}
	return Profile{}, nil
}
