// Package holdings computes one account's daily AccountStateSnapshot from
// yesterday's snapshot plus today's activity list. It applies no split
// adjustment to that list.
package holdings

import (
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AssetInfo is what the calculator needs to know about an asset to book
// activities against it, cached per-call to avoid re-querying per lot event.
type AssetInfo struct {
	Currency      string
	IsAlternative bool
}

// AssetLookup resolves AssetInfo for an asset ID.
type AssetLookup interface {
	Lookup(assetID string) (AssetInfo, error)
}

// Calculator produces one day's snapshot from the prior day's snapshot and
// the day's posted activities.
type Calculator struct {
	assets        AssetLookup
	fx            *money.Service
	baseCurrency  string
	log           zerolog.Logger
	assetCurrency map[string]AssetInfo // per-call cache, reset each Calculate
}

// NewCalculator builds a holdings calculator. baseCurrency is the
// process-wide base currency used for NetContributionBase/CashTotalBaseCurrency.
func NewCalculator(assets AssetLookup, fx *money.Service, baseCurrency string, log zerolog.Logger) *Calculator {
	return &Calculator{
		assets:       assets,
		fx:           fx,
		baseCurrency: baseCurrency,
		log:          log.With().Str("component", "holdings.Calculator").Logger(),
	}
}

// Calculate replays one day's activities against yesterday's snapshot and
// returns today's snapshot plus any non-fatal warnings encountered.
func (c *Calculator) Calculate(prior *domain.AccountStateSnapshot, accountID string, date time.Time, accountCurrency string, activities []domain.Activity) domain.HoldingsCalculationResult {
	c.assetCurrency = make(map[string]AssetInfo)

	snap := &domain.AccountStateSnapshot{
		ID:           domain.NewSnapshotID(accountID, date),
		AccountID:    accountID,
		SnapshotDate: date,
		Currency:     accountCurrency,
		Positions:    map[string]domain.Position{},
		CashBalances: map[string]float64{},
		Source:       domain.SnapshotSourceCalculated,
	}

	if prior != nil {
		for k, p := range prior.Positions {
			snap.Positions[k] = clonePosition(p)
		}
		for k, v := range prior.CashBalances {
			snap.CashBalances[k] = v
		}
		snap.NetContribution = prior.NetContribution
		snap.NetContributionBase = prior.NetContributionBase
	}

	var warnings []domain.HoldingsCalculationWarning
	warn := func(a domain.Activity, msg string) {
		warnings = append(warnings, domain.HoldingsCalculationWarning{ActivityID: a.ID, AccountID: accountID, Date: date, Message: msg})
	}

	for _, a := range activities {
		if !a.IsPosted() {
			continue
		}
		c.applyActivity(snap, a, accountCurrency, warn)
	}

	c.finalizeEndOfDay(snap, accountCurrency, date, warn)

	// Prune closed positions.
	for id, p := range snap.Positions {
		if p.IsClosed() {
			delete(snap.Positions, id)
		}
	}

	snap.CalculatedAt = time.Now()

	return domain.HoldingsCalculationResult{Snapshot: snap, Warnings: warnings}
}

func clonePosition(p domain.Position) domain.Position {
	lots := make([]domain.Lot, len(p.Lots))
	copy(lots, p.Lots)
	p.Lots = lots
	return p
}

func (c *Calculator) applyActivity(snap *domain.AccountStateSnapshot, a domain.Activity, accountCurrency string, warn func(domain.Activity, string)) {
	switch a.EffectiveType() {
	case domain.ActivityBuy:
		c.applyBuy(snap, a, warn)
	case domain.ActivitySell:
		c.applySell(snap, a, warn)
	case domain.ActivityDeposit:
		snap.CashBalances[a.Currency] += a.Amt() - a.FeeAmt()
		snap.NetContribution += c.toAccountCurrency(a.Amt(), a.Currency, accountCurrency, a, warn)
	case domain.ActivityWithdrawal:
		snap.CashBalances[a.Currency] -= a.Amt() + a.FeeAmt()
		snap.NetContribution -= c.toAccountCurrency(a.Amt(), a.Currency, accountCurrency, a, warn)
	case domain.ActivityDividend, domain.ActivityInterest, domain.ActivityCredit:
		snap.CashBalances[a.Currency] += a.Amt() - a.FeeAmt()
	case domain.ActivityFee, domain.ActivityTax:
		amt := a.FeeAmt()
		if amt == 0 {
			amt = a.Amt()
		}
		snap.CashBalances[a.Currency] -= abs(amt)
	case domain.ActivityTransferIn:
		c.applyTransferIn(snap, a, accountCurrency, warn)
	case domain.ActivityTransferOut:
		c.applyTransferOut(snap, a, accountCurrency, warn)
	case domain.ActivitySplit, domain.ActivityAdjustment:
		// SPLIT and ADJUSTMENT are no-ops here: a SPLIT does not rescale
		// earlier lots, and nothing in this module split-adjusts activities
		// before replay.
	}
}

func (c *Calculator) applyBuy(snap *domain.AccountStateSnapshot, a domain.Activity, warn func(domain.Activity, string)) {
	info := c.lookupAsset(a.AssetID, warn, a)
	posID := domain.NewPositionID(a.AccountID, a.AssetID)
	pos, ok := snap.Positions[posID]
	if !ok {
		pos = domain.Position{ID: posID, AccountID: a.AccountID, AssetID: a.AssetID, Currency: info.Currency, InceptionDate: a.ActivityDate, IsAlternative: info.IsAlternative}
	}

	price, fee, impliedRate := c.convertForLot(a, info.Currency, snap.Currency, warn)
	cost := a.Qty()*price + fee

	pos.AddLot(domain.Lot{
		ID: uuid.NewString(), PositionID: posID, AcquisitionDate: a.ActivityDate,
		Quantity: a.Qty(), CostBasis: cost, AcquisitionPrice: price, AcquisitionFees: fee, ImpliedFxRate: impliedRate,
	})
	snap.Positions[posID] = pos

	snap.CashBalances[a.Currency] -= a.Qty()*a.Price() + a.FeeAmt()
}

func (c *Calculator) applySell(snap *domain.AccountStateSnapshot, a domain.Activity, warn func(domain.Activity, string)) {
	posID := domain.NewPositionID(a.AccountID, a.AssetID)
	pos, ok := snap.Positions[posID]
	if ok {
		consumed, _ := pos.ReduceFIFO(a.Qty())
		if consumed < a.Qty() {
			warn(a, "sell exceeded available lots; consumed only what was available")
		}
		snap.Positions[posID] = pos
	} else {
		warn(a, "sell against a position with no open lots")
	}

	snap.CashBalances[a.Currency] += a.Qty()*a.Price() - a.FeeAmt()
}

func (c *Calculator) applyTransferIn(snap *domain.AccountStateSnapshot, a domain.Activity, accountCurrency string, warn func(domain.Activity, string)) {
	if a.AssetID != "" && a.AssetID != "CASH:"+a.Currency {
		c.applyBuy(snap, a, warn)
		if a.IsExternalFlow() {
			snap.NetContribution += c.toAccountCurrency(a.Qty()*a.Price(), a.Currency, accountCurrency, a, warn)
		}
		return
	}
	snap.CashBalances[a.Currency] += a.Amt() - a.FeeAmt()
	if a.IsExternalFlow() {
		snap.NetContribution += c.toAccountCurrency(a.Amt(), a.Currency, accountCurrency, a, warn)
	}
}

func (c *Calculator) applyTransferOut(snap *domain.AccountStateSnapshot, a domain.Activity, accountCurrency string, warn func(domain.Activity, string)) {
	if a.AssetID != "" && a.AssetID != "CASH:"+a.Currency {
		c.applySell(snap, a, warn)
		if a.IsExternalFlow() {
			snap.NetContribution -= c.toAccountCurrency(a.Qty()*a.Price(), a.Currency, accountCurrency, a, warn)
		}
		return
	}
	snap.CashBalances[a.Currency] -= a.Amt() + a.FeeAmt()
	if a.IsExternalFlow() {
		snap.NetContribution -= c.toAccountCurrency(a.Amt(), a.Currency, accountCurrency, a, warn)
	}
}

// convertForLot converts unit_price and fee into the position's currency.
// When the activity carries its own non-zero fx_rate and either currency
// equals the account currency, that rate is used directly; otherwise the FX
// service is asked for the date's rate. The implied rate is returned for
// audit on the lot.
func (c *Calculator) convertForLot(a domain.Activity, positionCurrency, accountCurrency string, warn func(domain.Activity, string)) (price, fee, impliedRate float64) {
	if a.Currency == positionCurrency {
		return a.Price(), a.FeeAmt(), 1.0
	}

	if a.FxRate != nil && *a.FxRate != 0 && (a.Currency == accountCurrency || positionCurrency == accountCurrency) {
		return a.Price() * *a.FxRate, a.FeeAmt() * *a.FxRate, *a.FxRate
	}

	rate, fellBack := c.fx.RateOn(a.Currency, positionCurrency, a.ActivityDate)
	if fellBack {
		warn(a, "fx conversion fell back to 1.0 for lot creation")
	}
	return a.Price() * rate, a.FeeAmt() * rate, rate
}

func (c *Calculator) toAccountCurrency(amount float64, from, to string, a domain.Activity, warn func(domain.Activity, string)) float64 {
	if from == to {
		return amount
	}
	converted, fellBack := c.fx.Convert(amount, from, to, a.ActivityDate)
	if fellBack {
		warn(a, "fx conversion fell back to 1.0 converting to account currency")
	}
	return converted
}

func (c *Calculator) lookupAsset(assetID string, warn func(domain.Activity, string), a domain.Activity) AssetInfo {
	if info, ok := c.assetCurrency[assetID]; ok {
		return info
	}
	if c.assets == nil {
		return AssetInfo{Currency: a.Currency}
	}
	info, err := c.assets.Lookup(assetID)
	if err != nil {
		warn(a, "asset currency lookup failed, using activity currency")
		info = AssetInfo{Currency: a.Currency}
	}
	c.assetCurrency[assetID] = info
	return info
}

// finalizeEndOfDay recomputes the account/base-currency cash totals and the
// account-currency cost basis, exactly once, from the accumulated balances.
func (c *Calculator) finalizeEndOfDay(snap *domain.AccountStateSnapshot, accountCurrency string, date time.Time, warn func(domain.Activity, string)) {
	noop := domain.Activity{ActivityDate: date}

	var costBasis, cashAcct, cashBase float64
	for _, pos := range snap.Positions {
		converted, fellBack := c.fx.Convert(pos.TotalCostBasis, pos.Currency, accountCurrency, date)
		if fellBack {
			warn(noop, "fx conversion fell back to 1.0 computing account-currency cost basis for "+pos.AssetID)
		}
		costBasis += converted
	}
	for ccy, amount := range snap.CashBalances {
		convertedAcct, fellBackAcct := c.fx.Convert(amount, ccy, accountCurrency, date)
		if fellBackAcct {
			warn(noop, "fx conversion fell back to 1.0 computing cash total in account currency for "+ccy)
		}
		cashAcct += convertedAcct

		convertedBase, fellBackBase := c.fx.Convert(amount, ccy, c.baseCurrency, date)
		if fellBackBase {
			warn(noop, "fx conversion fell back to 1.0 computing cash total in base currency for "+ccy)
		}
		cashBase += convertedBase
	}

	snap.CostBasis = costBasis
	snap.CashTotalAccountCurrency = cashAcct
	snap.CashTotalBaseCurrency = cashBase

	converted, fellBack := c.fx.Convert(snap.NetContribution, accountCurrency, c.baseCurrency, date)
	if fellBack {
		warn(noop, "fx conversion fell back to 1.0 computing net_contribution_base")
	}
	snap.NetContributionBase = converted
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
