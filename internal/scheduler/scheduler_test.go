package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock jumps forward whenever the loop waits, so After fires at once.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduleFirstAlignsToHour(t *testing.T) {
	s := Schedule{Align: time.Hour, Period: time.Hour}
	now := time.Date(2025, 3, 1, 10, 17, 42, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), s.First(now))
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), s.First(time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)))
}

func TestScheduleFirstWithoutAlign(t *testing.T) {
	s := Schedule{Period: 15 * time.Minute}
	now := time.Date(2025, 3, 1, 10, 17, 0, 0, time.UTC)
	assert.Equal(t, now.Add(15*time.Minute), s.First(now))
}

func TestScheduleNextSkipsMissedSlots(t *testing.T) {
	s := Schedule{Align: time.Hour, Period: time.Hour}
	prev := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

	assert.Equal(t, prev.Add(time.Hour), s.Next(prev, prev.Add(time.Minute)))
	assert.Equal(t, prev.Add(4*time.Hour), s.Next(prev, prev.Add(3*time.Hour+30*time.Minute)))
	assert.Equal(t, prev.Add(2*time.Hour), s.Next(prev, prev.Add(time.Hour)), "a slot equal to now is already missed")
}

func TestSchedulerRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 17, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired []time.Time
	job := func(ctx context.Context) error {
		fired = append(fired, clock.Now())
		if len(fired) == 2 {
			// a slow run that overlaps two more slots
			clock.Advance(2*time.Hour + 10*time.Minute)
		}
		if len(fired) == 4 {
			cancel()
		}
		return nil
	}

	New("test", Schedule{Align: time.Hour, Period: time.Hour}, clock, job).Run(ctx)

	require.Len(t, fired, 4)
	base := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, base, fired[0])
	assert.Equal(t, base.Add(time.Hour), fired[1])
	assert.Equal(t, base.Add(4*time.Hour), fired[2])
	assert.Equal(t, base.Add(5*time.Hour), fired[3])
}

func TestSchedulerSurvivesFailingJob(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	job := func(ctx context.Context) error {
		runs++
		switch runs {
		case 1:
			return errors.New("db down")
		case 2:
			panic("boom")
		default:
			cancel()
			return nil
		}
	}

	New("flaky", Schedule{Period: time.Minute}, clock, job).Run(ctx)
	assert.Equal(t, 3, runs)
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		New("idle", Schedule{Align: time.Hour, Period: time.Hour}, nil, func(context.Context) error {
			t.Error("job must not run")
			return nil
		}).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
