package repository

import (
	"context"
	"fmt"
	"net/http"

	"renthouse-scheduler/config"
	"renthouse-scheduler/internal/contract"
	"renthouse-scheduler/internal/dto"
	"renthouse-scheduler/internal/model"
	"renthouse-scheduler/pkg/httpclient"
	"renthouse-scheduler/pkg/logger"
	"renthouse-scheduler/pkg/ratelimit"

	"golang.org/x/time/rate"
)

const createBillEndpoint = "/internal/v1/bills"

type billingAPIRepository struct {
	cfg      *config.Config
	log      *logger.Logger
	client   httpclient.HTTPClient
	limiters *ratelimit.LimiterStore
}

// NewBillingAPIRepository returns a BillingTrigger that posts bill-creation
// requests to the billing service, rate limited per billing type so a burst
// of ticks cannot flood it.
func NewBillingAPIRepository(cfg *config.Config, log *logger.Logger) contract.BillingTrigger {
	return &billingAPIRepository{
		cfg:      cfg,
		log:      log,
		client:   httpclient.New(cfg.Billing.BaseURL, cfg.Billing.Timeout, cfg.Billing.APIToken),
		limiters: ratelimit.NewLimiterStore(rate.Limit(cfg.Billing.MaxRequestPerSec), cfg.Billing.Burst),
	}
}

func (r *billingAPIRepository) Trigger(ctx context.Context, meta model.BillScheduling) (*dto.BillingResult, error) {
	if err := r.limiters.GetLimiter(meta.BillingType).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	payload := dto.CreateBillRequest{
		RoomID:      meta.TargetID,
		BillingType: meta.BillingType,
		RequestedBy: meta.PrincipalID,
	}

	var result dto.BillingResult
	resp, err := r.client.Post(ctx, createBillEndpoint, payload, nil, &result)
	if err != nil {
		return nil, fmt.Errorf("billing service call failed: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("billing service returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	r.log.DebugContext(ctx, "Bill created",
		logger.StringField("room_id", meta.TargetID),
		logger.StringField("billing_type", meta.BillingType),
		logger.StringField("bill_id", result.BillID),
	)
	return &result, nil
}
