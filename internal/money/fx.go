package money

import (
	"time"

	"github.com/rs/zerolog"
)

// RateProvider fetches the latest available conversion rate between two
// major currency codes.
type RateProvider interface {
	GetRate(from, to string) (float64, error)
}

// HistoricalRateProvider is an optional capability a RateProvider may also
// implement to supply the rate as of a specific date rather than the
// latest one. RateOn uses it when present; providers that only expose a
// current rate can omit it and RateOn falls back to GetRate.
type HistoricalRateProvider interface {
	GetRateForDate(from, to string, date time.Time) (float64, error)
}

// Service resolves conversion rates for the holdings and snapshot
// calculators, falling back to 1.0 and a warning when the provider fails —
// FX registration and lookup failures are never fatal to portfolio math.
type Service struct {
	provider RateProvider
	log      zerolog.Logger
}

// NewService wraps a RateProvider (typically the exchangerate-api client)
// with the last-resort fallback behavior the holdings calculator requires.
func NewService(provider RateProvider, log zerolog.Logger) *Service {
	return &Service{provider: provider, log: log.With().Str("component", "money.Service").Logger()}
}

// Convert converts an amount from one currency to another using the rate
// as of date (see RateOn).
func (s *Service) Convert(amount float64, from, to string, date time.Time) (float64, bool) {
	rate, fallback := s.RateOn(from, to, date)
	return amount * rate, fallback
}

// RateOn returns the conversion rate from `from` to `to` as of date. When
// the configured provider also implements HistoricalRateProvider and date
// is non-zero, the date-specific rate is used; otherwise (or if that
// lookup fails) it falls back to the provider's latest rate, and finally
// to a 1.0 last-resort. The second return value is true when the real rate
// could not be obtained and the 1.0 fallback was used instead.
func (s *Service) RateOn(from, to string, date time.Time) (float64, bool) {
	from, to = MajorCode(from), MajorCode(to)
	if from == to {
		return 1.0, false
	}

	if s.provider == nil {
		s.log.Warn().Str("from", from).Str("to", to).Msg("no rate provider configured, using 1.0 fallback")
		return 1.0, true
	}

	if historical, ok := s.provider.(HistoricalRateProvider); ok && !date.IsZero() {
		rate, err := historical.GetRateForDate(from, to, date)
		if err == nil {
			return rate, false
		}
		s.log.Warn().Err(err).Str("from", from).Str("to", to).Time("as_of", date).
			Msg("historical fx rate lookup failed, falling back to latest rate")
	}

	rate, err := s.provider.GetRate(from, to)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("from", from).
			Str("to", to).
			Time("as_of", date).
			Msg("fx rate lookup failed, using 1.0 fallback")
		return 1.0, true
	}

	return rate, false
}
