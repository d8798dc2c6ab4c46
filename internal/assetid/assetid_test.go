package assetid

import (
	"testing"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferKind_ExplicitHintWins(t *testing.T) {
	assert.Equal(t, domain.AssetKindCrypto, InferKind("AAPL", "XNAS", "crypto"))
}

func TestInferKind_MicPresentImpliesSecurity(t *testing.T) {
	assert.Equal(t, domain.AssetKindSecurity, InferKind("BTC", "XNAS", ""))
}

func TestInferKind_CommonCryptoList(t *testing.T) {
	assert.Equal(t, domain.AssetKindCrypto, InferKind("ETH", "", ""))
	assert.Equal(t, domain.AssetKindCrypto, InferKind("sol", "", ""))
}

func TestInferKind_SuffixHeuristic(t *testing.T) {
	assert.Equal(t, domain.AssetKindCrypto, InferKind("SHIB-USD", "", ""))
}

func TestInferKind_DefaultsToSecurity(t *testing.T) {
	assert.Equal(t, domain.AssetKindSecurity, InferKind("AAPL", "", ""))
}

func TestSynthesize_Security(t *testing.T) {
	id, err := Synthesize(domain.AssetKindSecurity, "AAPL", "XNAS", "USD")
	require.NoError(t, err)
	assert.Equal(t, "SEC:AAPL:XNAS", id)
}

func TestSynthesize_SecurityNoMicIsUnknown(t *testing.T) {
	id, err := Synthesize(domain.AssetKindSecurity, "^GSPC", "", "USD")
	require.NoError(t, err)
	assert.Equal(t, "SEC:^GSPC:UNKNOWN", id)
}

func TestSynthesize_Cash(t *testing.T) {
	id, err := Synthesize(domain.AssetKindCash, "", "", "USD")
	require.NoError(t, err)
	assert.Equal(t, "CASH:USD", id)
}

func TestSynthesize_Fx(t *testing.T) {
	id, err := Synthesize(domain.AssetKindFxRate, "EURUSD", "", "")
	require.NoError(t, err)
	assert.Equal(t, "FX:EURUSD", id)
}

func TestSynthesize_Crypto(t *testing.T) {
	id, err := Synthesize(domain.AssetKindCrypto, "BTC", "", "USD")
	require.NoError(t, err)
	assert.Equal(t, "CRYPTO:BTC:USD", id)
}

func TestSynthesize_CashRequiresCurrency(t *testing.T) {
	_, err := Synthesize(domain.AssetKindCash, "", "", "")
	assert.Error(t, err)
}

func TestSynthesize_SecurityRequiresSymbol(t *testing.T) {
	_, err := Synthesize(domain.AssetKindSecurity, "", "", "USD")
	assert.Error(t, err)
}

func TestParse_RoundTripSecurity(t *testing.T) {
	p, err := Parse("SEC:AAPL:XNAS")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetKindSecurity, p.Kind)
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, "XNAS", p.Disc)

	id, err := Synthesize(p.Kind, p.Symbol, p.Disc, "")
	require.NoError(t, err)
	assert.Equal(t, "SEC:AAPL:XNAS", id)
}

func TestParse_RoundTripCash(t *testing.T) {
	p, err := Parse("CASH:USD")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetKindCash, p.Kind)
	assert.Equal(t, "USD", p.Symbol)

	id, err := Synthesize(p.Kind, "", "", p.Symbol)
	require.NoError(t, err)
	assert.Equal(t, "CASH:USD", id)
}

func TestParse_RoundTripCrypto(t *testing.T) {
	p, err := Parse("CRYPTO:BTC:USD")
	require.NoError(t, err)

	id, err := Synthesize(p.Kind, p.Symbol, "", p.Disc)
	require.NoError(t, err)
	assert.Equal(t, "CRYPTO:BTC:USD", id)
}

func TestParse_UnknownPrefix(t *testing.T) {
	_, err := Parse("WEIRD:FOO")
	assert.Error(t, err)
}

func TestParse_MalformedTooFewParts(t *testing.T) {
	_, err := Parse("SEC")
	assert.Error(t, err)
}

func TestParse_MalformedCashWithThreeParts(t *testing.T) {
	_, err := Parse("CASH:USD:EXTRA")
	assert.Error(t, err)
}
