package money

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	rate float64
	err  error
}

func (f fakeProvider) GetRate(from, to string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

func TestRateOn_SameCurrencyIsOne(t *testing.T) {
	svc := NewService(fakeProvider{rate: 99}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "USD", time.Now())
	assert.Equal(t, 1.0, rate)
	assert.False(t, fallback)
}

func TestRateOn_DelegatesToProvider(t *testing.T) {
	svc := NewService(fakeProvider{rate: 0.85}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "EUR", time.Now())
	assert.Equal(t, 0.85, rate)
	assert.False(t, fallback)
}

func TestRateOn_FallsBackOnError(t *testing.T) {
	svc := NewService(fakeProvider{err: errors.New("network down")}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "EUR", time.Now())
	assert.Equal(t, 1.0, rate)
	assert.True(t, fallback)
}

func TestRateOn_NilProviderFallsBack(t *testing.T) {
	svc := NewService(nil, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "EUR", time.Now())
	assert.Equal(t, 1.0, rate)
	assert.True(t, fallback)
}

func TestConvert(t *testing.T) {
	svc := NewService(fakeProvider{rate: 2.0}, zerolog.Nop())
	converted, fallback := svc.Convert(50, "USD", "EUR", time.Now())
	assert.Equal(t, 100.0, converted)
	assert.False(t, fallback)
}

type fakeHistoricalProvider struct {
	fakeProvider
	dateRate float64
	dateErr  error
}

func (f fakeHistoricalProvider) GetRateForDate(from, to string, date time.Time) (float64, error) {
	if f.dateErr != nil {
		return 0, f.dateErr
	}
	return f.dateRate, nil
}

func TestRateOn_UsesHistoricalRateWhenProviderSupportsIt(t *testing.T) {
	svc := NewService(fakeHistoricalProvider{fakeProvider: fakeProvider{rate: 0.90}, dateRate: 1.30}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "CAD", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.30, rate)
	assert.False(t, fallback)
}

func TestRateOn_FallsBackToLatestWhenHistoricalLookupFails(t *testing.T) {
	svc := NewService(fakeHistoricalProvider{
		fakeProvider: fakeProvider{rate: 0.90}, dateErr: errors.New("no history for date"),
	}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "CAD", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0.90, rate)
	assert.False(t, fallback)
}

func TestRateOn_ZeroDateSkipsHistoricalLookup(t *testing.T) {
	svc := NewService(fakeHistoricalProvider{fakeProvider: fakeProvider{rate: 0.90}, dateRate: 1.30}, zerolog.Nop())
	rate, fallback := svc.RateOn("USD", "CAD", time.Time{})
	assert.Equal(t, 0.90, rate)
	assert.False(t, fallback)
}
