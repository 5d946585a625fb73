package ports

import "time"

// SchedulerService runs the daemon's recurring jobs. Runs of the same job
// never overlap: the next run is scheduled only after the current one
// completes plus the interval.
type SchedulerService interface {
	Start()
	Stop()
	ScheduleRecurring(name string, interval time.Duration, fn func()) error
}
