package repository

import (
	"renthouse-scheduler/config"
	"renthouse-scheduler/internal/contract"
	"renthouse-scheduler/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	ScheduleJobRepo ScheduleJobRepository
	BillingRepo     contract.BillingTrigger
}

func NewRepository(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	return &Repository{
		ScheduleJobRepo: NewScheduleJobRepository(db),
		BillingRepo:     NewBillingAPIRepository(cfg, log),
	}, nil
}
