// Package scheduler keeps a rolling window of future slots generated.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ms-booking/internal/logger"
	"ms-booking/internal/slots"
)

// AheadGenerator is satisfied by *slots.Generator.
type AheadGenerator interface {
	GenerateAhead(ctx context.Context, days int) (slots.AheadSummary, error)
}

type Scheduler struct {
	Generator AheadGenerator
	Logger    *logger.Logger
	DaysAhead int
	Timeout   time.Duration

	cron *cron.Cron
}

func New(gen AheadGenerator, log *logger.Logger, daysAhead int) *Scheduler {
	return &Scheduler{
		Generator: gen,
		Logger:    log,
		DaysAhead: daysAhead,
		Timeout:   5 * time.Minute,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the rolling generation job on spec (e.g. "@daily") and starts the cron runner.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule slot generation %q: %w", spec, err)
	}
	s.cron.Start()
	s.Logger.Info("SCHEDULER", fmt.Sprintf("Rolling slot generation scheduled (%s, %d days ahead)", spec, s.DaysAhead))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce generates the next DaysAhead days for every configured sport.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	summary, err := s.Generator.GenerateAhead(ctx, s.DaysAhead)
	if err != nil {
		s.Logger.Error("SCHEDULER", fmt.Sprintf("Rolling generation finished with errors: %v", err))
	}
	s.Logger.Info("SCHEDULER", fmt.Sprintf("Rolling generation: %d sports, %d created, %d skipped in %s",
		summary.Sports, summary.Created, summary.Skipped, time.Since(start).Round(time.Millisecond)))
}
