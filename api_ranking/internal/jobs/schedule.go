// Package jobs runs the service's background work on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"frameworks/pkg/logging"
)

// Schedule is a validated cron expression.
type Schedule struct {
	expr string
}

func ParseSchedule(expr string) (Schedule, error) {
	if !gronx.IsValid(expr) {
		return Schedule{}, fmt.Errorf("invalid cron expression %q", expr)
	}
	return Schedule{expr: expr}, nil
}

// MustParseSchedule panics on an invalid expression. Use for constants only.
func MustParseSchedule(expr string) Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the first tick strictly after t.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

func (s Schedule) String() string { return s.expr }

// runner drives one job function on a schedule. Stop cancels a run in
// progress and waits for it to return.
type runner struct {
	name       string
	schedule   Schedule
	runOnStart bool
	logger     logging.Logger
	fn         func(ctx context.Context)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newRunner(name string, schedule Schedule, runOnStart bool, logger logging.Logger, fn func(ctx context.Context)) *runner {
	return &runner{
		name:       name,
		schedule:   schedule,
		runOnStart: runOnStart,
		logger:     logging.OrDiscard(logger),
		fn:         fn,
		stopCh:     make(chan struct{}),
	}
}

func (r *runner) start() {
	r.wg.Add(1)
	go r.loop()
	r.logger.WithFields(logging.Fields{"job": r.name, "cron": r.schedule.String()}).Info("Job started")
}

func (r *runner) stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.WithField("job", r.name).Info("Job stopped")
}

func (r *runner) loop() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if r.runOnStart {
		r.fn(ctx)
	}

	for {
		next, err := r.schedule.Next(time.Now())
		wait := time.Until(next)
		if err != nil {
			r.logger.WithError(err).WithField("job", r.name).Error("Failed to compute next tick")
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if err == nil {
				r.fn(ctx)
			}
		case <-r.stopCh:
			timer.Stop()
			return
		}
	}
}
