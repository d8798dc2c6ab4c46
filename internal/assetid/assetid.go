// Package assetid synthesizes and parses canonical asset IDs: the stable,
// deterministic strings (`SEC:AAPL:XNAS`, `CASH:USD`, `FX:EURUSD`,
// `CRYPTO:BTC:USD`) that identify an asset everywhere else in the engine.
package assetid

import (
	"fmt"
	"strings"

	"github.com/aristath/portfolio-engine/internal/apperr"
	"github.com/aristath/portfolio-engine/internal/domain"
)

const unknownDisc = "UNKNOWN"

// kindPrefix maps an AssetKind to its canonical-ID prefix.
var kindPrefix = map[domain.AssetKind]string{
	domain.AssetKindSecurity:         "SEC",
	domain.AssetKindCrypto:           "CRYPTO",
	domain.AssetKindCash:             "CASH",
	domain.AssetKindFxRate:           "FX",
	domain.AssetKindOption:           "OPT",
	domain.AssetKindCommodity:        "CMDTY",
	domain.AssetKindProperty:         "PROP",
	domain.AssetKindVehicle:          "VEH",
	domain.AssetKindCollectible:      "COLL",
	domain.AssetKindPhysicalPrecious: "PREC",
	domain.AssetKindPrivateEquity:    "PEQ",
	domain.AssetKindLiability:        "LIAB",
	domain.AssetKindOther:            "OTHER",
}

var prefixKind = func() map[string]domain.AssetKind {
	m := make(map[string]domain.AssetKind, len(kindPrefix))
	for k, v := range kindPrefix {
		m[v] = k
	}
	return m
}()

// commonCrypto is the ~27-symbol heuristic list used by InferKind when no
// exchange MIC or explicit kind hint is available.
var commonCrypto = map[string]bool{
	"BTC": true, "ETH": true, "XRP": true, "LTC": true, "BCH": true,
	"ADA": true, "DOT": true, "LINK": true, "XLM": true, "DOGE": true,
	"UNI": true, "SOL": true, "AVAX": true, "MATIC": true, "ATOM": true,
	"ALGO": true, "VET": true, "FIL": true, "TRX": true, "ETC": true,
	"XMR": true, "AAVE": true, "MKR": true, "COMP": true, "SNX": true,
	"YFI": true, "SUSHI": true, "CRV": true,
}

// kindHints maps user/provider-supplied kind hints (and their abbreviations)
// to AssetKind.
var kindHints = map[string]domain.AssetKind{
	"SECURITY": domain.AssetKindSecurity,
	"CRYPTO":   domain.AssetKindCrypto,
	"CASH":     domain.AssetKindCash,
	"FX_RATE":  domain.AssetKindFxRate,
	"FX":       domain.AssetKindFxRate,
	"OPTION":   domain.AssetKindOption,
	"OPT":      domain.AssetKindOption,
	"COMMODITY":         domain.AssetKindCommodity,
	"CMDTY":             domain.AssetKindCommodity,
	"PROPERTY":          domain.AssetKindProperty,
	"PROP":              domain.AssetKindProperty,
	"VEHICLE":           domain.AssetKindVehicle,
	"VEH":               domain.AssetKindVehicle,
	"COLLECTIBLE":       domain.AssetKindCollectible,
	"COLL":              domain.AssetKindCollectible,
	"PHYSICAL_PRECIOUS": domain.AssetKindPhysicalPrecious,
	"PREC":              domain.AssetKindPhysicalPrecious,
	"PRIVATE_EQUITY":    domain.AssetKindPrivateEquity,
	"PEQ":               domain.AssetKindPrivateEquity,
	"LIABILITY":         domain.AssetKindLiability,
	"LIAB":              domain.AssetKindLiability,
	"OTHER":             domain.AssetKindOther,
	"ALT":               domain.AssetKindOther,
}

// InferKind determines an asset's kind from a symbol, optional exchange MIC,
// and optional kind hint, in that order of precedence:
//  1. explicit hint, if recognized
//  2. exchange MIC present => Security
//  3. symbol in the common-crypto list, or containing a "-<fiat>" suffix => Crypto
//  4. default: Security
func InferKind(symbol, exchangeMIC, kindHint string) domain.AssetKind {
	if kindHint != "" {
		if kind, ok := kindHints[strings.ToUpper(kindHint)]; ok {
			return kind
		}
	}

	if exchangeMIC != "" {
		return domain.AssetKindSecurity
	}

	upper := strings.ToUpper(symbol)
	if commonCrypto[upper] {
		return domain.AssetKindCrypto
	}
	for _, suffix := range []string{"-USD", "-CAD", "-EUR", "-GBP"} {
		if strings.Contains(upper, suffix) {
			return domain.AssetKindCrypto
		}
	}

	return domain.AssetKindSecurity
}

// Synthesize builds the canonical asset ID for a resolved kind, symbol,
// exchange MIC (empty when not applicable), and currency. Generation is
// deterministic and idempotent: the same inputs always produce the same ID.
func Synthesize(kind domain.AssetKind, symbol, exchangeMIC, currency string) (string, error) {
	prefix, ok := kindPrefix[kind]
	if !ok {
		return "", apperr.New(apperr.KindValidation, "assetid.Synthesize", "unknown asset kind").WithIdentifier(string(kind))
	}

	switch kind {
	case domain.AssetKindCash:
		if currency == "" {
			return "", apperr.New(apperr.KindValidation, "assetid.Synthesize", "cash assets require a currency")
		}
		return prefix + ":" + strings.ToUpper(currency), nil
	case domain.AssetKindFxRate:
		if symbol == "" {
			return "", apperr.New(apperr.KindValidation, "assetid.Synthesize", "fx assets require a pair symbol")
		}
		return prefix + ":" + strings.ToUpper(symbol), nil
	case domain.AssetKindCrypto:
		if symbol == "" {
			return "", apperr.New(apperr.KindValidation, "assetid.Synthesize", "crypto assets require a symbol")
		}
		quoteCcy := currency
		if quoteCcy == "" {
			quoteCcy = unknownDisc
		}
		return fmt.Sprintf("%s:%s:%s", prefix, strings.ToUpper(symbol), strings.ToUpper(quoteCcy)), nil
	default:
		if symbol == "" {
			return "", apperr.New(apperr.KindValidation, "assetid.Synthesize", "requires asset_id or symbol")
		}
		disc := unknownDisc
		if exchangeMIC != "" {
			disc = strings.ToUpper(exchangeMIC)
		}
		return fmt.Sprintf("%s:%s:%s", prefix, strings.ToUpper(symbol), disc), nil
	}
}

// Parsed is a canonical asset ID broken into its components.
type Parsed struct {
	Kind   domain.AssetKind
	Symbol string
	Disc   string // MIC, "INDEX", "UNKNOWN", or a quote currency; empty for CASH/FX
}

// Parse splits a canonical asset ID back into its components. Re-emitting
// Parsed via Synthesize yields the original string (round-trip invariant).
func Parse(id string) (Parsed, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return Parsed{}, apperr.New(apperr.KindValidation, "assetid.Parse", "malformed asset id").WithIdentifier(id)
	}

	kind, ok := prefixKind[parts[0]]
	if !ok {
		return Parsed{}, apperr.New(apperr.KindValidation, "assetid.Parse", "unknown asset kind prefix").WithIdentifier(id)
	}

	switch kind {
	case domain.AssetKindCash, domain.AssetKindFxRate:
		if len(parts) != 2 {
			return Parsed{}, apperr.New(apperr.KindValidation, "assetid.Parse", "malformed cash/fx asset id").WithIdentifier(id)
		}
		return Parsed{Kind: kind, Symbol: parts[1]}, nil
	default:
		if len(parts) != 3 {
			return Parsed{}, apperr.New(apperr.KindValidation, "assetid.Parse", "malformed asset id").WithIdentifier(id)
		}
		return Parsed{Kind: kind, Symbol: parts[1], Disc: parts[2]}, nil
	}
}
