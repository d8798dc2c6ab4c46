// Package quotesync keeps Quote storage fresh for every asset the portfolio
// holds: it decides what to fetch, reacts to activity events, and
// reconciles each asset's active/inactive status against open positions.
package quotesync

import "time"

// Mode selects how a SymbolSyncPlan's date range is produced.
type Mode string

const (
	// ModeIncremental continues from last_quote_date+1, with a small
	// backward overlap to heal late corrections.
	ModeIncremental Mode = "Incremental"
	// ModeRefetchRecent re-fetches and overwrites the last N days.
	ModeRefetchRecent Mode = "RefetchRecent"
	// ModeBackfillHistory overwrites the entire history from the activity
	// start date (or an N-day fallback when there is no activity history).
	ModeBackfillHistory Mode = "BackfillHistory"
)

// overlapDays heals late corrections in incremental syncs by re-requesting
// a small trailing window even when resuming from last_quote_date+1.
const overlapDays = 3

// inactiveGracePeriod is how long an inactive asset is still synced before
// being skipped entirely, giving a recently-closed position's quotes time
// to settle.
const inactiveGracePeriod = 30 * 24 * time.Hour

// SymbolSyncPlan is the unit of work for one asset's quote sync pass.
type SymbolSyncPlan struct {
	AssetID   string
	StartDate time.Time
	EndDate   time.Time
	Mode      Mode
	Reason    string
}

// AssetSyncInput is what the planner needs to know about one asset to build
// its plan.
type AssetSyncInput struct {
	AssetID           string
	IsFxRate          bool
	HasForeignBalance bool // true when the account still holds a foreign-currency cash position this FX pair prices
	IsActive          bool
	InactiveSince     *time.Time
	LastQuoteDate     *time.Time
	ActivityStartDate *time.Time // earliest activity date referencing this asset, if any
}

// PlanOptions parameterizes the planner; RefetchDays/BackfillFallbackDays
// come from engine configuration.
type PlanOptions struct {
	RefetchDays          int
	BackfillFallbackDays int
	Mode                 Mode // RefetchRecent/BackfillHistory request; empty means Incremental
	Now                  time.Time
}

// Plan decides whether and how to sync one asset, per spec §4.5: inactive
// assets past the grace period are skipped, but an FX asset still pricing a
// foreign-currency position is never skipped regardless of activity status.
func Plan(in AssetSyncInput, opts PlanOptions) *SymbolSyncPlan {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	if !in.IsActive && !(in.IsFxRate && in.HasForeignBalance) {
		if in.InactiveSince != nil && now.Sub(*in.InactiveSince) > inactiveGracePeriod {
			return nil
		}
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeIncremental
	}

	switch mode {
	case ModeRefetchRecent:
		days := opts.RefetchDays
		if days <= 0 {
			days = 30
		}
		return &SymbolSyncPlan{
			AssetID: in.AssetID, StartDate: now.AddDate(0, 0, -days), EndDate: now,
			Mode: ModeRefetchRecent, Reason: "manual refetch request",
		}

	case ModeBackfillHistory:
		start := now.AddDate(0, 0, -fallbackDays(opts))
		if in.ActivityStartDate != nil {
			start = *in.ActivityStartDate
		}
		return &SymbolSyncPlan{
			AssetID: in.AssetID, StartDate: start, EndDate: now,
			Mode: ModeBackfillHistory, Reason: "full history backfill",
		}

	default: // Incremental
		if in.LastQuoteDate == nil {
			start := now.AddDate(0, 0, -fallbackDays(opts))
			if in.ActivityStartDate != nil && in.ActivityStartDate.Before(start) {
				start = *in.ActivityStartDate
			}
			return &SymbolSyncPlan{
				AssetID: in.AssetID, StartDate: start, EndDate: now,
				Mode: ModeIncremental, Reason: "no prior quotes, backfilling from activity start",
			}
		}
		start := in.LastQuoteDate.AddDate(0, 0, 1-overlapDays)
		if start.After(now) {
			return nil
		}
		return &SymbolSyncPlan{
			AssetID: in.AssetID, StartDate: start, EndDate: now,
			Mode: ModeIncremental, Reason: "continuing from last quote date with healing overlap",
		}
	}
}

func fallbackDays(opts PlanOptions) int {
	if opts.BackfillFallbackDays > 0 {
		return opts.BackfillFallbackDays
	}
	return 365
}
