package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"renthouse-scheduler/config"
	"renthouse-scheduler/internal/contract"
	"renthouse-scheduler/internal/dto"
	"renthouse-scheduler/internal/model"
	"renthouse-scheduler/internal/repository"
	"renthouse-scheduler/pkg/cache"
	"renthouse-scheduler/pkg/logger"
	"renthouse-scheduler/pkg/utils"

	goValidator "github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"
)

type SchedulerService interface {
	CreateJob(ctx context.Context, req *dto.CreateScheduleJobRequest) (*model.ScheduleJob, error)
	UpdateJob(ctx context.Context, jobID uint, req *dto.UpdateScheduleJobRequest) (*model.ScheduleJob, error)
	RemoveJob(ctx context.Context, jobID uint) error
	RunJobTask(ctx context.Context, jobID uint) error
	RecoverOnStartup(ctx context.Context) error
	GetJobs(ctx context.Context, param model.GetScheduleJobParam) ([]dto.ScheduleJobResponse, error)
}

type schedulerService struct {
	cfg        *config.Config
	log        *logger.Logger
	validator  *goValidator.Validate
	jobRepo    repository.ScheduleJobRepository
	registry   JobRegistry
	translator RuleTranslator
	billing    contract.BillingTrigger
	cache      cache.Cache
	semaphore  *semaphore.Weighted
	inflight   sync.Map
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	validator *goValidator.Validate,
	jobRepo repository.ScheduleJobRepository,
	registry JobRegistry,
	translator RuleTranslator,
	billing contract.BillingTrigger,
	inmemoryCache cache.Cache,
) *schedulerService {
	return &schedulerService{
		cfg:        cfg,
		log:        log,
		validator:  validator,
		jobRepo:    jobRepo,
		registry:   registry,
		translator: translator,
		billing:    billing,
		cache:      inmemoryCache,
		semaphore:  semaphore.NewWeighted(int64(cfg.Scheduler.MaxConcurrency)),
	}
}

// CreateJob translates the rule, supersedes any active job for the same
// (kind, target) pair, persists the new record and registers its timer.
func (s *schedulerService) CreateJob(ctx context.Context, req *dto.CreateScheduleJobRequest) (*model.ScheduleJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid schedule request: %w", err)
	}

	cronExpression, degraded, err := s.translator.Translate(req.Rule, req.Timezone)
	if err != nil {
		return nil, err
	}
	if degraded {
		s.log.WarnContext(ctx, "Rule frequency unsupported, schedule degraded to fallback",
			logger.StringField("rule", req.Rule),
			logger.StringField("cron", cronExpression),
		)
	}

	// At most one active job per target is expected, but stray duplicates
	// are superseded all the same.
	existing, err := s.jobRepo.FindActiveByTarget(ctx, req.Kind, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules to supersede: %w", err)
	}
	for _, old := range existing {
		s.log.InfoContext(ctx, "Superseding schedule",
			logger.IntField("job_id", int(old.ID)),
			logger.StringField("name", old.Name),
		)
		if err := s.RemoveJob(ctx, old.ID); err != nil {
			return nil, fmt.Errorf("failed to supersede job %d: %w", old.ID, err)
		}
	}

	metadata, err := model.EncodeMetadata(model.BillScheduling{
		TargetID:    req.TargetID,
		BillingType: req.BillingType,
		Rule:        req.Rule,
		PrincipalID: req.PrincipalID,
		Timezone:    req.Timezone,
	})
	if err != nil {
		return nil, err
	}

	job := &model.ScheduleJob{
		Name:           fmt.Sprintf("%s-%s", req.Kind, req.TargetID),
		CronExpression: cronExpression,
		Description:    req.Description,
		IsActive:       true,
		Metadata:       metadata,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist schedule job: %w", err)
	}

	if err := s.registry.Add(job.ID, cronExpression, s.tickFunc(job.ID)); err != nil {
		return nil, fmt.Errorf("failed to register job %d: %w", job.ID, err)
	}

	s.log.InfoContext(ctx, "Schedule created",
		logger.IntField("job_id", int(job.ID)),
		logger.StringField("name", job.Name),
		logger.StringField("cron", cronExpression),
		logger.StringField("timezone", req.Timezone),
	)
	return job, nil
}

// UpdateJob persists the patch and re-registers the timer fresh so the
// runner picks up a changed schedule. The record itself stays live.
func (s *schedulerService) UpdateJob(ctx context.Context, jobID uint, req *dto.UpdateScheduleJobRequest) (*model.ScheduleJob, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, jobID)
	}

	meta, err := model.DecodeMetadata(job.Metadata)
	if err != nil {
		return nil, err
	}
	bill, ok := meta.(model.BillScheduling)
	if !ok {
		return nil, fmt.Errorf("cannot update schedule with metadata kind %q", meta.MetadataKind())
	}

	if req.Description != nil {
		job.Description = *req.Description
	}
	if req.Rule != nil {
		bill.Rule = *req.Rule
	}
	if req.Timezone != nil {
		bill.Timezone = *req.Timezone
	}
	if req.Rule != nil || req.Timezone != nil {
		cronExpression, degraded, err := s.translator.Translate(bill.Rule, bill.Timezone)
		if err != nil {
			return nil, err
		}
		if degraded {
			s.log.WarnContext(ctx, "Rule frequency unsupported, schedule degraded to fallback",
				logger.IntField("job_id", int(jobID)),
				logger.StringField("cron", cronExpression),
			)
		}
		job.CronExpression = cronExpression
	}

	metadata, err := model.EncodeMetadata(bill)
	if err != nil {
		return nil, err
	}
	job.Metadata = metadata

	if err := s.jobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update schedule job: %w", err)
	}

	s.registry.Remove(jobID)
	if job.IsActive {
		if err := s.registry.Add(jobID, job.CronExpression, s.tickFunc(jobID)); err != nil {
			return nil, fmt.Errorf("failed to re-register job %d: %w", jobID, err)
		}
	}

	s.log.InfoContext(ctx, "Schedule updated",
		logger.IntField("job_id", int(jobID)),
		logger.StringField("cron", job.CronExpression),
	)
	return job, nil
}

// RemoveJob stops the timer first so the store update cannot race a tick or
// a concurrent recovery pass, then deactivates and soft-deletes the record.
func (s *schedulerService) RemoveJob(ctx context.Context, jobID uint) error {
	s.registry.Remove(jobID)

	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load schedule job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: id %d", ErrJobNotFound, jobID)
	}

	if err := s.jobRepo.Remove(ctx, jobID); err != nil {
		return fmt.Errorf("failed to remove job %d: %w", jobID, err)
	}

	s.log.InfoContext(ctx, "Schedule removed",
		logger.IntField("job_id", int(jobID)),
		logger.StringField("name", job.Name),
	)
	return nil
}

// RunJobTask forces one synchronous tick for the job. Used by the ops API.
func (s *schedulerService) RunJobTask(ctx context.Context, jobID uint) error {
	s.log.InfoContext(ctx, "Forcing schedule tick", logger.IntField("job_id", int(jobID)))
	return s.executeTick(ctx, jobID)
}

// RecoverOnStartup re-registers every active record. Safe to call more than
// once: duplicate registrations are skipped.
func (s *schedulerService) RecoverOnStartup(ctx context.Context) error {
	jobs, err := s.jobRepo.Get(ctx, &model.GetScheduleJobParam{IsActive: utils.ToPointer(true)})
	if err != nil {
		// Degraded start: nothing registered, but the process stays up.
		s.log.ErrorContext(ctx, "Job store unavailable, starting with zero registered schedules",
			logger.ErrorField(err),
		)
		return nil
	}

	registered := 0
	for _, job := range jobs {
		if !utils.ShouldContinue(ctx, s.log) {
			return nil
		}
		if err := s.registry.Add(job.ID, job.CronExpression, s.tickFunc(job.ID)); err != nil {
			if errors.Is(err, ErrDuplicateJob) {
				s.log.DebugContext(ctx, "Schedule already registered, skipping",
					logger.IntField("job_id", int(job.ID)),
				)
				continue
			}
			s.log.ErrorContext(ctx, "Failed to register schedule on recovery",
				logger.ErrorField(err),
				logger.IntField("job_id", int(job.ID)),
				logger.StringField("cron", job.CronExpression),
			)
			continue
		}
		registered++
	}

	s.log.InfoContext(ctx, "Startup recovery completed",
		logger.IntField("active_jobs", len(jobs)),
		logger.IntField("registered", registered),
	)
	return nil
}

func (s *schedulerService) GetJobs(ctx context.Context, param model.GetScheduleJobParam) ([]dto.ScheduleJobResponse, error) {
	jobs, err := s.jobRepo.Get(ctx, &param)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule jobs: %w", err)
	}

	out := make([]dto.ScheduleJobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp := dto.ScheduleJobResponse{
			ScheduleJob: job,
			Registered:  s.registry.Exists(job.ID),
		}
		if v, ok := s.cache.Get(tickOutcomeKey(job.ID)); ok {
			if outcome, ok := v.(dto.TickOutcome); ok {
				resp.LastTick = &outcome
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

func (s *schedulerService) tickFunc(jobID uint) func() {
	return func() { s.handleTick(jobID) }
}

// handleTick is the timer entry point. Overlapping fires for the same job
// are skipped, and total tick concurrency is capped.
func (s *schedulerService) handleTick(jobID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Scheduler.TickTimeout)
	defer cancel()

	if err := s.semaphore.Acquire(ctx, 1); err != nil {
		s.log.Error("Tick never acquired an execution slot",
			logger.ErrorField(err),
			logger.IntField("job_id", int(jobID)),
		)
		return
	}
	defer s.semaphore.Release(1)

	if err := s.executeTick(ctx, jobID); err != nil {
		if errors.Is(err, ErrTickInFlight) {
			s.log.Warn("Previous tick still in flight, skipping fire",
				logger.IntField("job_id", int(jobID)),
			)
			return
		}
		s.log.ErrorContext(ctx, "Tick execution failed",
			logger.ErrorField(err),
			logger.IntField("job_id", int(jobID)),
		)
	}
}

// executeTick holds the per-job in-flight slot for the whole tick, so a
// forced run and a scheduled fire can never invoke billing concurrently
// for the same job.
func (s *schedulerService) executeTick(ctx context.Context, jobID uint) error {
	if _, running := s.inflight.LoadOrStore(jobID, struct{}{}); running {
		return fmt.Errorf("%w: job %d", ErrTickInFlight, jobID)
	}
	defer s.inflight.Delete(jobID)

	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load schedule job: %w", err)
	}
	if job == nil || !job.IsActive {
		// Stale registry entry; the store is the source of truth.
		s.registry.Remove(jobID)
		s.log.InfoContext(ctx, "Dropped stale registry entry",
			logger.IntField("job_id", int(jobID)),
		)
		return nil
	}

	meta, err := model.DecodeMetadata(job.Metadata)
	if err != nil {
		return err
	}
	bill, ok := meta.(model.BillScheduling)
	if !ok {
		return fmt.Errorf("no tick handler for metadata kind %q", meta.MetadataKind())
	}

	result, err := s.billing.Trigger(ctx, bill)
	if err != nil {
		// No retry within this tick; the next scheduled fire is the retry.
		s.recordOutcome(jobID, dto.TickOutcome{
			Status: dto.TickStatusFailed,
			Error:  err.Error(),
			RanAt:  utils.TimeNowUTC(),
		})
		return fmt.Errorf("billing trigger failed: %w", err)
	}
	s.recordOutcome(jobID, dto.TickOutcome{
		Status: dto.TickStatusSucceeded,
		BillID: result.BillID,
		RanAt:  utils.TimeNowUTC(),
	})

	next, err := s.translator.NextOccurrence(bill.Rule, utils.TimeNowUTC())
	if err != nil {
		s.log.WarnContext(ctx, "Could not re-parse stored rule for exhaustion check",
			logger.ErrorField(err),
			logger.IntField("job_id", int(jobID)),
		)
		return nil
	}
	if next.IsZero() {
		s.registry.Remove(jobID)
		if err := s.jobRepo.Deactivate(ctx, jobID); err != nil {
			return fmt.Errorf("failed to deactivate exhausted job %d: %w", jobID, err)
		}
		s.log.InfoContext(ctx, "Recurrence exhausted, schedule deactivated",
			logger.IntField("job_id", int(jobID)),
			logger.StringField("name", job.Name),
		)
	}
	return nil
}

func (s *schedulerService) recordOutcome(jobID uint, outcome dto.TickOutcome) {
	s.cache.Set(tickOutcomeKey(jobID), outcome, 0)
}

func tickOutcomeKey(jobID uint) string {
	return fmt.Sprintf("schedule_job:last_tick:%d", jobID)
}
