package entities

import (
	"time"
)

// BillingCategory is the closed set of caregiver activity categories
type BillingCategory string

const (
	CategoryMedReminder   BillingCategory = "MED_REMINDER"
	CategoryMealPrep      BillingCategory = "MEAL_PREP"
	CategoryADLHygiene    BillingCategory = "ADL_HYGIENE"
	CategoryVitals        BillingCategory = "VITALS"
	CategoryCompanionship BillingCategory = "COMPANIONSHIP"
)

// BlockEvidence references one transcript segment contributing to a block,
// carried for auditability.
type BlockEvidence struct {
	SegmentID string `json:"segment_id"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	Text      string `json:"text"`
}

// BillableBlock is a consolidated, categorized span of caregiver activity.
// Blocks are derived records: each billing run fully replaces a visit's set.
type BillableBlock struct {
	ID               string          `json:"id" db:"id"`
	VisitID          string          `json:"visit_id" db:"visit_id"`
	Code             string          `json:"code" db:"code"`
	Category         BillingCategory `json:"category" db:"category"`
	Description      string          `json:"description" db:"description"`
	StartMs          int64           `json:"start_ms" db:"start_ms"`
	EndMs            int64           `json:"end_ms" db:"end_ms"`
	Minutes          int             `json:"minutes" db:"minutes"`
	Evidence         []BlockEvidence `json:"evidence" db:"evidence"`
	IsFlagged        bool            `json:"is_flagged" db:"is_flagged"`
	FlagReason       string          `json:"flag_reason,omitempty" db:"flag_reason"`
	AdjustedMinutes  *int            `json:"adjusted_minutes,omitempty" db:"adjusted_minutes"`
	AdjustmentReason string          `json:"adjustment_reason,omitempty" db:"adjustment_reason"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// BilledMinutes returns the reviewer-adjusted minutes when set, else the
// computed minutes.
func (b *BillableBlock) BilledMinutes() int {
	if b.AdjustedMinutes != nil {
		return *b.AdjustedMinutes
	}
	return b.Minutes
}
