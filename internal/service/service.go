package service

import (
	"renthouse-scheduler/config"
	"renthouse-scheduler/internal/repository"
	"renthouse-scheduler/pkg/cache"
	"renthouse-scheduler/pkg/logger"

	goValidator "github.com/go-playground/validator/v10"
)

type Service struct {
	SchedulerService SchedulerService
	RuleTranslator   RuleTranslator
	JobRegistry      JobRegistry
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	validator *goValidator.Validate,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
) *Service {
	translator := NewRuleTranslator()
	registry := NewJobRegistry(log)
	schedulerService := NewSchedulerService(
		cfg,
		log,
		validator,
		repo.ScheduleJobRepo,
		registry,
		translator,
		repo.BillingRepo,
		inmemoryCache,
	)

	return &Service{
		SchedulerService: schedulerService,
		RuleTranslator:   translator,
		JobRegistry:      registry,
	}
}
