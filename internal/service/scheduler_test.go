package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"renthouse-scheduler/config"
	"renthouse-scheduler/internal/dto"
	"renthouse-scheduler/internal/model"
	"renthouse-scheduler/pkg/cache"
	"renthouse-scheduler/pkg/logger"
	"renthouse-scheduler/pkg/utils"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monthlyRule = "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1"

type jobRow struct {
	job     model.ScheduleJob
	deleted bool
}

type fakeScheduleJobRepo struct {
	mu      sync.Mutex
	nextID  uint
	jobs    map[uint]*jobRow
	listErr error
}

func newFakeScheduleJobRepo() *fakeScheduleJobRepo {
	return &fakeScheduleJobRepo{jobs: make(map[uint]*jobRow)}
}

func (r *fakeScheduleJobRepo) Create(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	stored := *job
	r.jobs[job.ID] = &jobRow{job: stored}
	return nil
}

func (r *fakeScheduleJobRepo) Update(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.jobs[job.ID]
	if !ok || row.deleted {
		return fmt.Errorf("job %d not found", job.ID)
	}
	stored := *job
	row.job = stored
	return nil
}

func (r *fakeScheduleJobRepo) Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.jobs[id]; ok {
		row.job.IsActive = false
	}
	return nil
}

func (r *fakeScheduleJobRepo) Remove(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.jobs[id]; ok {
		row.job.IsActive = false
		row.deleted = true
	}
	return nil
}

func (r *fakeScheduleJobRepo) FindByID(ctx context.Context, id uint) (*model.ScheduleJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.jobs[id]
	if !ok || row.deleted {
		return nil, nil
	}
	job := row.job
	return &job, nil
}

func (r *fakeScheduleJobRepo) FindActiveByTarget(ctx context.Context, kind, targetID string) ([]model.ScheduleJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScheduleJob
	for _, row := range r.jobs {
		if row.deleted || !row.job.IsActive {
			continue
		}
		meta, err := model.DecodeMetadata(row.job.Metadata)
		if err != nil {
			continue
		}
		bill, ok := meta.(model.BillScheduling)
		if !ok || meta.MetadataKind() != kind || bill.TargetID != targetID {
			continue
		}
		out = append(out, row.job)
	}
	return out, nil
}

func (r *fakeScheduleJobRepo) Get(ctx context.Context, param *model.GetScheduleJobParam, opts ...utils.DBOption) ([]model.ScheduleJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.ScheduleJob
	for id := uint(1); id <= r.nextID; id++ {
		row, ok := r.jobs[id]
		if !ok || row.deleted {
			continue
		}
		if param.IsActive != nil && row.job.IsActive != *param.IsActive {
			continue
		}
		out = append(out, row.job)
	}
	return out, nil
}

func (r *fakeScheduleJobRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.jobs {
		if !row.deleted && row.job.IsActive {
			count++
		}
	}
	return count
}

type fakeBillingTrigger struct {
	mu    sync.Mutex
	calls []model.BillScheduling
	err   error

	// When set, Trigger announces itself on entered and parks on release,
	// letting tests hold a tick open mid-flight.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBillingTrigger) Trigger(ctx context.Context, meta model.BillScheduling) (*dto.BillingResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, meta)
	err := f.err
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &dto.BillingResult{BillID: "bill-1", Status: "created"}, nil
}

func (f *fakeBillingTrigger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T) (*schedulerService, *fakeScheduleJobRepo, *fakeBillingTrigger, JobRegistry) {
	t.Helper()

	cfg := &config.Config{
		Scheduler: config.Scheduler{MaxConcurrency: 2, TickTimeout: time.Minute},
	}
	log, err := logger.New("error", "console")
	require.NoError(t, err)

	repo := newFakeScheduleJobRepo()
	billing := &fakeBillingTrigger{}
	registry := NewJobRegistry(log)

	svc := NewSchedulerService(
		cfg,
		log,
		goValidator.New(),
		repo,
		registry,
		NewRuleTranslator(),
		billing,
		cache.NewCache(time.Minute, time.Minute),
	)
	return svc, repo, billing, registry
}

func billRequest(targetID, rule string) *dto.CreateScheduleJobRequest {
	return &dto.CreateScheduleJobRequest{
		Rule:        rule,
		Kind:        "bill",
		TargetID:    targetID,
		BillingType: "rent",
		PrincipalID: "user-1",
		Timezone:    "UTC",
	}
}

func TestCreateJobTranslatesAndRegisters(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	assert.Equal(t, "0 0 1 * *", job.CronExpression)
	assert.Equal(t, "bill-room-42", job.Name)
	assert.True(t, job.IsActive)
	assert.True(t, registry.Exists(job.ID))

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	meta, err := model.DecodeMetadata(stored.Metadata)
	require.NoError(t, err)
	bill, ok := meta.(model.BillScheduling)
	require.True(t, ok)
	assert.Equal(t, "room-42", bill.TargetID)
	assert.Equal(t, monthlyRule, bill.Rule)
	assert.Equal(t, "user-1", bill.PrincipalID)
	assert.Equal(t, "UTC", bill.Timezone)
}

func TestCreateJobSupersedesExisting(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	first, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	second, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	assert.Equal(t, 1, repo.activeCount())
	assert.False(t, registry.Exists(first.ID))
	assert.True(t, registry.Exists(second.ID))

	gone, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCreateJobDifferentTargetsCoexist(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	a, err := svc.CreateJob(ctx, billRequest("room-1", monthlyRule))
	require.NoError(t, err)
	b, err := svc.CreateJob(ctx, billRequest("room-2", monthlyRule))
	require.NoError(t, err)

	assert.Equal(t, 2, repo.activeCount())
	assert.True(t, registry.Exists(a.ID))
	assert.True(t, registry.Exists(b.ID))
}

func TestCreateJobMalformedRule(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, billRequest("room-42", "NOT_A_RULE"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleParse))

	// No side effects: nothing persisted, nothing registered.
	assert.Equal(t, 0, repo.activeCount())
	assert.False(t, registry.Exists(1))
}

func TestCreateJobValidation(t *testing.T) {
	svc, repo, _, _ := newTestScheduler(t)

	req := billRequest("room-42", monthlyRule)
	req.Timezone = ""

	_, err := svc.CreateJob(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, repo.activeCount())
}

func TestCreateJobDegradedFrequencyStillSucceeds(t *testing.T) {
	svc, _, _, registry := newTestScheduler(t)

	req := billRequest("room-42", "DTSTART:20250101T000000\nRRULE:FREQ=YEARLY")
	job, err := svc.CreateJob(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "0 0 1 * *", job.CronExpression)
	assert.True(t, registry.Exists(job.ID))
}

func TestTickExhaustionDeactivates(t *testing.T) {
	svc, repo, billing, registry := newTestScheduler(t)
	ctx := context.Background()

	rule := "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1;COUNT=1"
	job, err := svc.CreateJob(ctx, billRequest("room-42", rule))
	require.NoError(t, err)

	require.NoError(t, svc.RunJobTask(ctx, job.ID))

	assert.Equal(t, 1, billing.callCount())
	assert.False(t, registry.Exists(job.ID))

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.IsActive)
}

func TestTickBillingFailureKeepsJobActive(t *testing.T) {
	svc, repo, billing, registry := newTestScheduler(t)
	ctx := context.Background()
	billing.err = errors.New("billing service down")

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	err = svc.RunJobTask(ctx, job.ID)
	require.Error(t, err)

	// No retry within the tick; the record stays active and registered so
	// the next scheduled fire retries.
	assert.Equal(t, 1, billing.callCount())
	assert.True(t, registry.Exists(job.ID))

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.IsActive)
}

func TestRemoveJobThenForcedTickIsNoop(t *testing.T) {
	svc, _, billing, registry := newTestScheduler(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	require.NoError(t, svc.RemoveJob(ctx, job.ID))
	assert.False(t, registry.Exists(job.ID))

	require.NoError(t, svc.RunJobTask(ctx, job.ID))
	assert.Equal(t, 0, billing.callCount())
}

func TestRunJobTaskRejectsOverlappingTick(t *testing.T) {
	svc, _, billing, _ := newTestScheduler(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	billing.entered = make(chan struct{})
	billing.release = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() { firstDone <- svc.RunJobTask(ctx, job.ID) }()
	<-billing.entered

	// A second forced run while the first still sits inside the billing
	// call must be rejected, not executed.
	err = svc.RunJobTask(ctx, job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTickInFlight))

	close(billing.release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 1, billing.callCount())
}

func TestRemoveJobNotFound(t *testing.T) {
	svc, _, _, _ := newTestScheduler(t)

	err := svc.RemoveJob(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestUpdateJobReRegistersWithNewCron(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)

	newRule := "DTSTART:20250101T000000\nRRULE:FREQ=DAILY;BYHOUR=9"
	updated, err := svc.UpdateJob(ctx, job.ID, &dto.UpdateScheduleJobRequest{Rule: &newRule})
	require.NoError(t, err)

	assert.Equal(t, "0 9 * * *", updated.CronExpression)
	assert.True(t, registry.Exists(job.ID))

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	meta, err := model.DecodeMetadata(stored.Metadata)
	require.NoError(t, err)
	assert.Equal(t, newRule, meta.(model.BillScheduling).Rule)
}

func TestUpdateJobNotFound(t *testing.T) {
	svc, _, _, _ := newTestScheduler(t)

	desc := "new description"
	_, err := svc.UpdateJob(context.Background(), 99, &dto.UpdateScheduleJobRequest{Description: &desc})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestRecoverOnStartupIsIdempotent(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	ctx := context.Background()

	for _, target := range []string{"room-1", "room-2"} {
		metadata, err := model.EncodeMetadata(model.BillScheduling{
			TargetID:    target,
			BillingType: "rent",
			Rule:        monthlyRule,
			PrincipalID: "user-1",
			Timezone:    "UTC",
		})
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, &model.ScheduleJob{
			Name:           "bill-" + target,
			CronExpression: "0 0 1 * *",
			IsActive:       true,
			Metadata:       metadata,
		}))
	}

	require.NoError(t, svc.RecoverOnStartup(ctx))
	// A second pass hits duplicate registrations and skips them.
	require.NoError(t, svc.RecoverOnStartup(ctx))

	assert.True(t, registry.Exists(1))
	assert.True(t, registry.Exists(2))
}

func TestRecoverOnStartupStoreUnavailable(t *testing.T) {
	svc, repo, _, registry := newTestScheduler(t)
	repo.listErr = errors.New("connection refused")

	// Degraded, not fatal: no error and nothing registered.
	require.NoError(t, svc.RecoverOnStartup(context.Background()))
	assert.False(t, registry.Exists(1))
}

func TestGetJobsReportsLastTick(t *testing.T) {
	svc, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, billRequest("room-42", monthlyRule))
	require.NoError(t, err)
	require.NoError(t, svc.RunJobTask(ctx, job.ID))

	jobs, err := svc.GetJobs(ctx, model.GetScheduleJobParam{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.True(t, jobs[0].Registered)
	require.NotNil(t, jobs[0].LastTick)
	assert.Equal(t, dto.TickStatusSucceeded, jobs[0].LastTick.Status)
	assert.Equal(t, "bill-1", jobs[0].LastTick.BillID)
}
