// Package scheduler runs a job on aligned, fixed intervals.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Clock abstracts time so tests can drive the loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Schedule fires first on the next Align boundary and then every Period.
type Schedule struct {
	Align  time.Duration
	Period time.Duration
}

// First returns the first fire time strictly after now.
func (s Schedule) First(now time.Time) time.Time {
	if s.Align <= 0 {
		return now.Add(s.Period)
	}
	return now.Truncate(s.Align).Add(s.Align)
}

// Next returns the first slot after prev that is still in the future.
// Slots that passed while the job was running are skipped.
func (s Schedule) Next(prev, now time.Time) time.Time {
	next := prev.Add(s.Period)
	for !next.After(now) {
		next = next.Add(s.Period)
	}
	return next
}

type Job func(ctx context.Context) error

type Scheduler struct {
	name     string
	schedule Schedule
	clock    Clock
	job      Job
}

func New(name string, schedule Schedule, clock Clock, job Job) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{
		name:     name,
		schedule: schedule,
		clock:    clock,
		job:      job,
	}
}

// Run blocks until ctx is cancelled. Runs never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	next := s.schedule.First(s.clock.Now())
	slog.Info("scheduler started", "job", s.name, "first_run", next.Format(time.RFC3339), "period", s.schedule.Period)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(s.clock.Now())):
		}
		if ctx.Err() != nil {
			return
		}

		s.runOnce(ctx)
		next = s.schedule.Next(next, s.clock.Now())
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("scheduled job panicked", "job", s.name, "panic", p)
		}
	}()

	start := s.clock.Now()
	err := s.job(ctx)
	if err != nil {
		slog.Error("scheduled job failed", "job", s.name, "error", err)
		return
	}
	slog.Debug("scheduled job finished", "job", s.name, "duration", s.clock.Now().Sub(start))
}
