package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"renthouse-scheduler/pkg/logger"

	"github.com/robfig/cron/v3"
)

// JobRegistry is the process-local table of live timers, keyed by job id.
// It is a derived cache of "what should currently be running"; the job
// store stays the source of truth and recovery rebuilds this table.
type JobRegistry interface {
	// Add starts a timer firing onTick per cronExpression. Fails with
	// ErrDuplicateJob when the id is already registered.
	Add(jobID uint, cronExpression string, onTick func()) error

	// Remove stops and releases the timer if present, otherwise no-op.
	// Once it returns, no further tick fires for the id.
	Remove(jobID uint)

	Exists(jobID uint) bool

	Start()
	Stop() context.Context
}

type cronJobRegistry struct {
	log     *logger.Logger
	runner  *cron.Cron
	mu      sync.Mutex
	entries map[uint]cron.EntryID
}

func NewJobRegistry(log *logger.Logger) JobRegistry {
	runner := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(cron.NewParser(
			cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
	)
	return &cronJobRegistry{
		log:     log,
		runner:  runner,
		entries: make(map[uint]cron.EntryID),
	}
}

func (r *cronJobRegistry) Add(jobID uint, cronExpression string, onTick func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[jobID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateJob, jobID)
	}

	entryID, err := r.runner.AddFunc(cronExpression, onTick)
	if err != nil {
		return fmt.Errorf("failed to register cron %q for job %d: %w", cronExpression, jobID, err)
	}
	r.entries[jobID] = entryID

	r.log.Debug("Registered job timer",
		logger.IntField("job_id", int(jobID)),
		logger.StringField("cron", cronExpression),
	)
	return nil
}

func (r *cronJobRegistry) Remove(jobID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryID, ok := r.entries[jobID]
	if !ok {
		return
	}
	// The running scheduler consumes the removal before arming another
	// fire, so no tick for this id starts after Remove returns.
	r.runner.Remove(entryID)
	delete(r.entries, jobID)

	r.log.Debug("Removed job timer", logger.IntField("job_id", int(jobID)))
}

func (r *cronJobRegistry) Exists(jobID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[jobID]
	return ok
}

func (r *cronJobRegistry) Start() {
	r.runner.Start()
}

// Stop halts scheduling; the returned context is done once in-flight ticks
// have returned.
func (r *cronJobRegistry) Stop() context.Context {
	return r.runner.Stop()
}
