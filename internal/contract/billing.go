package contract

import (
	"context"

	"renthouse-scheduler/internal/dto"
	"renthouse-scheduler/internal/model"
)

// BillingTrigger performs the domain action for one billing period. The
// scheduler only depends on this call-and-await shape; implementations own
// their transport and retries.
type BillingTrigger interface {
	Trigger(ctx context.Context, meta model.BillScheduling) (*dto.BillingResult, error)
}
