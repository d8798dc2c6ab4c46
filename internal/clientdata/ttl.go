package clientdata

import "time"

// TTL constants for the cache tables. These are added to time.Now() when
// storing to calculate expires_at.
const (
	// TTLExchangeRate bounds how long a cached FX rate is considered fresh
	// before a provider fetch is attempted again.
	TTLExchangeRate = time.Hour

	// TTLProviderQuote bounds how long a cached market data quote is
	// considered fresh. Shorter than TTLExchangeRate since quotes move more.
	TTLProviderQuote = 10 * time.Minute

	// TTLSymbolResolution bounds how long a resolved symbol mapping (ticker,
	// exchange, asset kind) is cached before re-resolution is attempted.
	// Resolutions rarely change, so this is long-lived.
	TTLSymbolResolution = 30 * 24 * time.Hour
)
