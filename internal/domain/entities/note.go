package entities

import (
	"time"
)

// NoteTask is one service rendered during the visit, derived from a billable
// block.
type NoteTask struct {
	Category    BillingCategory `json:"category"`
	Description string          `json:"description"`
	Minutes     int             `json:"minutes"`
}

// StructuredNote holds the machine-derived sections of a visit note.
type StructuredNote struct {
	TasksPerformed []NoteTask `json:"tasks_performed"`
	Observations   []string   `json:"observations"`
	Concerns       string     `json:"concerns"`
	Condition      string     `json:"condition,omitempty"`
	Vitals         string     `json:"vitals,omitempty"`
}

// VisitNote is the structured note for a visit, one per visit. Approval state
// is independent of the visit's pipeline state.
type VisitNote struct {
	ID             string         `json:"id" db:"id"`
	VisitID        string         `json:"visit_id" db:"visit_id"`
	StructuredData StructuredNote `json:"structured_data" db:"structured_data"`
	Narrative      string         `json:"narrative" db:"narrative"`
	IsApproved     bool           `json:"is_approved" db:"is_approved"`
	ApprovedBy     string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// ContractDocument is the service-delivery contract assembled from the
// approved note and billable blocks. E-signature happens outside this system.
type ContractDocument struct {
	ID           string    `json:"id" db:"id"`
	VisitID      string    `json:"visit_id" db:"visit_id"`
	Content      string    `json:"content" db:"content"`
	TotalMinutes int       `json:"total_minutes" db:"total_minutes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
