package utils

import "time"

// The scheduler's reference timezone. Every persisted cron expression and
// every exhaustion check is evaluated on this clock.
func ReferenceLocation() *time.Location {
	return time.UTC
}

func TimeNowUTC() time.Time {
	return time.Now().In(ReferenceLocation())
}
