package entities

import (
	"time"
)

// VisitStatus represents the lifecycle status of a home visit
type VisitStatus string

const (
	VisitStatusScheduled     VisitStatus = "scheduled"
	VisitStatusInProgress    VisitStatus = "in_progress"
	VisitStatusPendingReview VisitStatus = "pending_review"
	VisitStatusApproved      VisitStatus = "approved"
	VisitStatusExported      VisitStatus = "exported"
)

// Stage identifies one unit of the visit processing pipeline
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageDiarization   Stage = "diarization"
	StageAlignment     Stage = "alignment"
	StageBilling       Stage = "billing"
	StageNote          Stage = "note"
	StageContract      Stage = "contract"
)

// StageOrder is the strict execution sequence of pipeline stages.
var StageOrder = []Stage{
	StageTranscription,
	StageDiarization,
	StageAlignment,
	StageBilling,
	StageNote,
	StageContract,
}

// NextStage returns the stage following s, or "" if s is the last stage.
func NextStage(s Stage) Stage {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// StageStatus represents the status of one pipeline stage
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusQueued     StageStatus = "queued"
	StageStatusProcessing StageStatus = "processing"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
)

// StageRecord is the persisted state of a single pipeline stage. Counters hold
// stage summary figures (segment counts, block totals) written on completion.
type StageRecord struct {
	Status     StageStatus    `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Counters   map[string]int `json:"counters,omitempty"`
}

// PipelineState maps each stage to its record. It is mutated by merging one
// stage key at a time, never replaced wholesale.
type PipelineState map[Stage]StageRecord

// NewPipelineState returns a state with every stage pending except the first,
// which is queued ready for the worker.
func NewPipelineState() PipelineState {
	state := make(PipelineState, len(StageOrder))
	for i, stage := range StageOrder {
		record := StageRecord{Status: StageStatusPending}
		if i == 0 {
			record.Status = StageStatusQueued
		}
		state[stage] = record
	}
	return state
}

// Visit represents one caregiver home visit and owns one pipeline run
type Visit struct {
	ID             string        `json:"id" db:"id"`
	ClientID       string        `json:"client_id" db:"client_id"`
	CaregiverID    string        `json:"caregiver_id" db:"caregiver_id"`
	ScheduledStart time.Time     `json:"scheduled_start" db:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end" db:"scheduled_end"`
	ActualStart    *time.Time    `json:"actual_start,omitempty" db:"actual_start"`
	ActualEnd      *time.Time    `json:"actual_end,omitempty" db:"actual_end"`
	AudioAssetKey  string        `json:"audio_asset_key,omitempty" db:"audio_asset_key"`
	Status         VisitStatus   `json:"status" db:"status"`
	PipelineState  PipelineState `json:"pipeline_state" db:"pipeline_state"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// DurationMs returns the visit span in milliseconds, preferring actual times
// over scheduled ones.
func (v *Visit) DurationMs() int64 {
	start, end := v.ScheduledStart, v.ScheduledEnd
	if v.ActualStart != nil && v.ActualEnd != nil {
		start, end = *v.ActualStart, *v.ActualEnd
	}
	return end.Sub(start).Milliseconds()
}
