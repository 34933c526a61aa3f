package checkout

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically retires finished and abandoned checkouts.
type Sweeper struct {
	svc      *Service
	schedule string
	cron     *cron.Cron
}

func NewSweeper(svc *Service, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{svc: svc, schedule: schedule}
}

// Start schedules the sweep job.
func (s *Sweeper) Start() error {
	c := cron.New()

	_, err := c.AddFunc(s.schedule, func() {
		if n := s.svc.Sweep(context.Background()); n > 0 {
			log.Printf("checkout sweeper retired %d checkouts (%d active)", n, s.svc.Active())
		}
	})
	if err != nil {
		return err
	}

	s.cron = c
	c.Start()
	log.Printf("Checkout sweeper started (%s)", s.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
