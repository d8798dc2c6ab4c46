// Package domain defines the core entities of the portfolio engine: assets,
// activities, lots, positions, snapshots, quotes, sync state, import runs,
// and the P2P sync envelope. These are plain structs with no persistence or
// business logic attached; repositories and services operate on them.
package domain

import "time"

// AssetKind closes the set of instrument kinds the engine understands.
type AssetKind string

const (
	AssetKindSecurity         AssetKind = "Security"
	AssetKindCrypto           AssetKind = "Crypto"
	AssetKindCash             AssetKind = "Cash"
	AssetKindFxRate           AssetKind = "FxRate"
	AssetKindOption           AssetKind = "Option"
	AssetKindCommodity        AssetKind = "Commodity"
	AssetKindProperty         AssetKind = "Property"
	AssetKindVehicle          AssetKind = "Vehicle"
	AssetKindCollectible      AssetKind = "Collectible"
	AssetKindPhysicalPrecious AssetKind = "PhysicalPrecious"
	AssetKindPrivateEquity    AssetKind = "PrivateEquity"
	AssetKindLiability        AssetKind = "Liability"
	AssetKindOther            AssetKind = "Other"
)

// Asset is the identity record for anything that can be held, owed, or
// quoted: securities, crypto, cash buckets, FX pairs, and alternative assets.
//
// ID is the canonical asset ID (see package assetid) and is the primary key
// everywhere else in the domain refers to an asset by.
type Asset struct {
	ID                string
	Kind              AssetKind
	Symbol            string
	ExchangeMIC       string // empty when not applicable (cash, crypto)
	Currency          string
	PreferredProvider string            // empty means "let the registry decide"
	ProviderOverrides map[string]string // provider ID -> provider-specific symbol
	CreatedAt         time.Time
	UpdatedAt         time.Time

	SyncEnvelope
}

// IsAlternative reports whether the asset belongs to the set of kinds that
// the holdings calculator and snapshot aggregator treat as illiquid/manual
// valuation rather than market-quoted.
func (a Asset) IsAlternative() bool {
	switch a.Kind {
	case AssetKindProperty, AssetKindVehicle, AssetKindCollectible,
		AssetKindPhysicalPrecious, AssetKindPrivateEquity, AssetKindLiability, AssetKindOther:
		return true
	default:
		return false
	}
}

// ResolvedProvider returns the provider-specific symbol for a given provider
// ID, falling back to the asset's own Symbol when no override is registered.
func (a Asset) ResolvedProvider(providerID string) string {
	if a.ProviderOverrides != nil {
		if sym, ok := a.ProviderOverrides[providerID]; ok && sym != "" {
			return sym
		}
	}
	return a.Symbol
}
