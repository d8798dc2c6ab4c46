package domain

import "time"

// Lot is a FIFO acquisition record inside a position. Lots have no
// independent identity outside their position; SELL/TRANSFER_OUT consume
// them oldest-first. Cost basis is stored in the position's currency.
type Lot struct {
	ID                string
	PositionID        string
	AcquisitionDate   time.Time
	Quantity          float64
	CostBasis         float64
	AcquisitionPrice  float64
	AcquisitionFees   float64
	// ImpliedFxRate records the rate used to convert the originating
	// activity's price/fee into the position's currency, for audit.
	ImpliedFxRate float64
}

// Position is the per-account, per-asset open aggregate. ID is
// account_id||asset_id.
type Position struct {
	ID             string
	AccountID      string
	AssetID        string
	Currency       string
	Quantity       float64
	AverageCost    float64
	TotalCostBasis float64
	Lots           []Lot // ordered FIFO queue, oldest first
	InceptionDate  time.Time
	IsAlternative  bool
}

// NewPositionID builds the canonical position ID for an account/asset pair.
func NewPositionID(accountID, assetID string) string {
	return accountID + "||" + assetID
}

// AddLot appends a newly acquired lot and recomputes aggregate quantity/cost.
func (p *Position) AddLot(lot Lot) {
	p.Lots = append(p.Lots, lot)
	p.recompute()
}

// ReduceFIFO consumes qty shares from the front of the lot queue, returning
// the realized cost basis of the consumed quantity and the quantity actually
// consumed (which is less than qty when the position holds fewer shares than
// requested — the source normalizes this case via FIFO and emits only a
// warning upstream, never an error).
func (p *Position) ReduceFIFO(qty float64) (consumedQty, realizedCostBasis float64) {
	remaining := qty
	var kept []Lot

	for i := range p.Lots {
		lot := p.Lots[i]
		if remaining <= 0 {
			kept = append(kept, lot)
			continue
		}

		if lot.Quantity <= remaining {
			consumedQty += lot.Quantity
			realizedCostBasis += lot.CostBasis
			remaining -= lot.Quantity
			continue
		}

		frac := remaining / lot.Quantity
		partialBasis := lot.CostBasis * frac
		consumedQty += remaining
		realizedCostBasis += partialBasis

		lot.Quantity -= remaining
		lot.CostBasis -= partialBasis
		kept = append(kept, lot)
		remaining = 0
	}

	p.Lots = kept
	p.recompute()
	return consumedQty, realizedCostBasis
}

// IsClosed reports whether the position has no remaining quantity and should
// be pruned from the snapshot.
func (p Position) IsClosed() bool {
	return p.Quantity == 0
}

func (p *Position) recompute() {
	var qty, cost float64
	for _, lot := range p.Lots {
		qty += lot.Quantity
		cost += lot.CostBasis
	}
	p.Quantity = qty
	p.TotalCostBasis = cost
	if qty != 0 {
		p.AverageCost = cost / qty
	} else {
		p.AverageCost = 0
	}
}
