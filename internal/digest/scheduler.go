package digest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler builds and delivers the digest on a cron schedule.
type Scheduler struct {
	lister    HistoryLister
	notifiers []Notifier
	schedule  cron.Schedule
	lookback  time.Duration
	now       func() time.Time
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	History   HistoryLister
	Notifiers []Notifier
	Schedule  string           // 5-field cron expression
	Lookback  time.Duration    // defaults to 24h
	Now       func() time.Time // defaults to time.Now
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.History == nil {
		return nil, fmt.Errorf("digest: history is required")
	}
	if len(opts.Notifiers) == 0 {
		return nil, fmt.Errorf("digest: at least one notifier is required")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("digest: parse schedule %q: %w", opts.Schedule, err)
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		lister:    opts.History,
		notifiers: opts.Notifiers,
		schedule:  sched,
		lookback:  opts.Lookback,
		now:       opts.Now,
	}, nil
}

// Next returns the next fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// RunOnce builds the digest for the lookback window ending now and sends it
// to every notifier. It reports false when there was nothing to send. A
// failing notifier does not stop delivery to the others.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	now := s.now()
	report, err := Build(ctx, s.lister, now.Add(-s.lookback), now)
	if err != nil {
		return false, err
	}
	if report == nil {
		return false, nil
	}

	formatted := Format(report)
	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, formatted); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("digest: sent %d terms via %s", len(report.Terms), n.Name())
	}
	return len(errs) < len(s.notifiers), errors.Join(errs...)
}

// Run fires RunOnce at each scheduled time until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("digest: %v", err)
			}
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now()
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
