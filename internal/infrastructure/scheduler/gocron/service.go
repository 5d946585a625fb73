package scheduler

import (
	"time"

	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	// One job instance at a time: the next run is skipped while the
	// previous one is still in flight, never run concurrently with it.
	svc.SingletonModeAll()
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleRecurring(name string, interval time.Duration, fn func()) error {
	_, err := s.scheduler.Every(interval).Tag(name).Do(fn)
	return err
}
