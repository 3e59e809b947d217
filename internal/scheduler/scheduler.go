package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/banksec/backend/internal/services"
)

// Sweeper is the loan servicing pass run on a schedule.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (services.SweepReport, error)
}

// Scheduler runs the periodic loan sweep.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler registers the sweep under spec, any standard cron
// expression or descriptor such as "@every 1h".
func NewScheduler(sweeper Sweeper, spec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		sweeper: sweeper,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(spec, s.RunSweep); err != nil {
		return nil, fmt.Errorf("failed to register loan sweep %q: %w", spec, err)
	}
	log.Printf("[SCHEDULER] loan sweep registered (%s)", spec)
	return s, nil
}

// RunSweep performs one sweep. Failures are logged; the next tick retries.
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx, s.now().UTC())
	if err != nil {
		log.Printf("[SCHEDULER] loan sweep failed: %v", err)
		return
	}
	log.Printf("[SCHEDULER] loan sweep checked=%d accrued=%d defaulted=%d",
		report.Checked, report.Accrued, report.Defaulted)
}

func (s *Scheduler) Start() {
	log.Println("[SCHEDULER] starting")
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	log.Println("[SCHEDULER] stopping")
	<-s.cron.Stop().Done()
	log.Println("[SCHEDULER] stopped")
}

func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
