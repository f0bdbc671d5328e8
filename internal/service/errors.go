package service

import "errors"

var (
	// ErrRuleParse marks malformed recurrence-rule text or an unknown
	// timezone. The only tick-unrelated error callers are expected to
	// branch on.
	ErrRuleParse = errors.New("unparseable recurrence rule")

	// ErrDuplicateJob is returned by JobRegistry.Add for an id that is
	// already registered. Benign during startup recovery.
	ErrDuplicateJob = errors.New("job already registered")

	ErrJobNotFound = errors.New("schedule job not found")

	// ErrTickInFlight means a tick for the same job is still running.
	// Scheduled fires treat it as a skip; forced runs surface it.
	ErrTickInFlight = errors.New("tick already in flight")
)
