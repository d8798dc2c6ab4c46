package domain

import (
	"encoding/json"
	"time"
)

// ActivityType closes the set of economic events the holdings calculator
// dispatches on.
type ActivityType string

const (
	ActivityBuy          ActivityType = "BUY"
	ActivitySell         ActivityType = "SELL"
	ActivityDeposit      ActivityType = "DEPOSIT"
	ActivityWithdrawal   ActivityType = "WITHDRAWAL"
	ActivityDividend     ActivityType = "DIVIDEND"
	ActivityInterest     ActivityType = "INTEREST"
	ActivityCredit       ActivityType = "CREDIT"
	ActivityFee          ActivityType = "FEE"
	ActivityTax          ActivityType = "TAX"
	ActivityTransferIn   ActivityType = "TRANSFER_IN"
	ActivityTransferOut  ActivityType = "TRANSFER_OUT"
	ActivitySplit        ActivityType = "SPLIT"
	ActivityAdjustment   ActivityType = "ADJUSTMENT"
)

// ActivityStatus tracks the lifecycle of an activity row.
type ActivityStatus string

const (
	ActivityStatusPosted  ActivityStatus = "POSTED"
	ActivityStatusPending ActivityStatus = "PENDING"
	ActivityStatusDraft   ActivityStatus = "DRAFT"
	ActivityStatusVoid    ActivityStatus = "VOID"
)

// Activity is a posted, pending, draft, or void economic event against an
// account. Non-cash activity types require AssetID; cash activities default
// AssetID to CASH:{currency} during ingestion.
type Activity struct {
	ID        string
	AccountID string
	AssetID   string // "" only transiently, before ingestion resolves it

	// Symbol, ExchangeMIC, and KindHint are canonical-asset-ID resolution
	// hints for ingestion only: CSV/broker rows carry a ticker instead of
	// (or in addition to) AssetID. They are never persisted — resolution
	// consumes them and rewrites AssetID before the row is stored.
	Symbol      string
	ExchangeMIC string
	KindHint    string

	ActivityType         ActivityType
	ActivityTypeOverride string // user override; never touched by sync, see EffectiveType
	Subtype              string
	Status               ActivityStatus

	ActivityDate   time.Time
	SettlementDate *time.Time

	Quantity  *float64
	UnitPrice *float64
	Amount    *float64
	Fee       *float64
	Currency  string
	FxRate    *float64

	Notes    string
	Metadata json.RawMessage

	SourceSystem    string
	SourceRecordID  string
	SourceGroupID   string
	IdempotencyKey  string
	ImportRunID     string

	NeedsReview    bool
	IsUserModified bool

	CreatedAt time.Time
	UpdatedAt time.Time

	SyncEnvelope
}

// EffectiveType returns ActivityTypeOverride when set, otherwise ActivityType.
// Every consumer of activity classification (holdings calculator, CSV
// transfer-pair linking) must dispatch on this, never on ActivityType alone,
// so that "preserves activity_type_override across updates" actually holds.
func (a Activity) EffectiveType() ActivityType {
	if a.ActivityTypeOverride != "" {
		return ActivityType(a.ActivityTypeOverride)
	}
	return a.ActivityType
}

// HasOverride reports whether a user has overridden the canonical activity type.
func (a Activity) HasOverride() bool {
	return a.ActivityTypeOverride != ""
}

// IsPosted reports whether this activity should affect calculations.
func (a Activity) IsPosted() bool {
	return a.Status == ActivityStatusPosted
}

// Qty returns Quantity, defaulting to zero when unset.
func (a Activity) Qty() float64 {
	if a.Quantity == nil {
		return 0
	}
	return *a.Quantity
}

// Price returns UnitPrice, defaulting to zero when unset.
func (a Activity) Price() float64 {
	if a.UnitPrice == nil {
		return 0
	}
	return *a.UnitPrice
}

// Amt returns Amount, defaulting to zero when unset.
func (a Activity) Amt() float64 {
	if a.Amount == nil {
		return 0
	}
	return *a.Amount
}

// FeeAmt returns Fee, defaulting to zero when unset.
func (a Activity) FeeAmt() float64 {
	if a.Fee == nil {
		return 0
	}
	return *a.Fee
}

// IsExternalFlow reports whether metadata.flow.is_external is true. Transfers
// default to internal (no net_contribution effect); this flag upgrades them.
func (a Activity) IsExternalFlow() bool {
	if len(a.Metadata) == 0 {
		return false
	}
	var wrapper struct {
		Flow struct {
			IsExternal bool `json:"is_external"`
		} `json:"flow"`
	}
	if err := json.Unmarshal(a.Metadata, &wrapper); err != nil {
		return false
	}
	return wrapper.Flow.IsExternal
}

// ImportRunStatus closes the set of states an import run passes through.
type ImportRunStatus string

const (
	ImportRunStatusPending   ImportRunStatus = "PENDING"
	ImportRunStatusRunning   ImportRunStatus = "RUNNING"
	ImportRunStatusCompleted ImportRunStatus = "COMPLETED"
	ImportRunStatusFailed    ImportRunStatus = "FAILED"
)

// ImportRunMode distinguishes a validation-only dry run from one that applies changes.
type ImportRunMode string

const (
	ImportRunModeDryRun ImportRunMode = "DRY_RUN"
	ImportRunModeApply  ImportRunMode = "APPLY"
)

// ImportRun tracks a single bulk import attempt.
type ImportRun struct {
	ID         string
	AccountID  string
	Provider   string
	RunType    string
	Mode       ImportRunMode
	ReviewMode bool
	Status     ImportRunStatus
	Summary    ImportRunSummary
	StartedAt  time.Time
	FinishedAt *time.Time
	AppliedAt  *time.Time
	Error      string
	UpdatedAt  time.Time
}

// ImportRunSummary holds the row-level outcome counts for an import run.
type ImportRunSummary struct {
	Inserted int
	Updated  int
	Skipped  int
	Errored  int
}

// RowError describes a single failed row within a bulk operation. Per-row
// validation errors are collected, not thrown; the batch returns successes
// plus a slice of these.
type RowError struct {
	ID      string
	Action  string // "create", "update", "delete"
	Message string
}
