package dto

import (
	"time"

	"renthouse-scheduler/internal/model"
)

// CreateScheduleJobRequest is the primary entry point payload: an iCalendar
// recurrence rule plus the billing target it should fire for.
type CreateScheduleJobRequest struct {
	Rule        string `json:"rule" validate:"required"`
	Kind        string `json:"kind" validate:"required"`
	TargetID    string `json:"target_id" validate:"required"`
	BillingType string `json:"billing_type" validate:"required"`
	PrincipalID string `json:"principal_id" validate:"required"`
	Timezone    string `json:"timezone" validate:"required"`
	Description string `json:"description"`
}

type UpdateScheduleJobRequest struct {
	Rule        *string `json:"rule"`
	Timezone    *string `json:"timezone"`
	Description *string `json:"description"`
}

type ScheduleJobResponse struct {
	model.ScheduleJob
	Registered bool         `json:"registered"`
	LastTick   *TickOutcome `json:"last_tick,omitempty"`
}

const (
	TickStatusSucceeded = "succeeded"
	TickStatusFailed    = "failed"
)

// TickOutcome records how the most recent tick of a job went.
type TickOutcome struct {
	Status string    `json:"status"`
	BillID string    `json:"bill_id,omitempty"`
	Error  string    `json:"error,omitempty"`
	RanAt  time.Time `json:"ran_at"`
}
