package chainsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSyncer struct {
	calls atomic.Int64
	fail  bool
}

func (c *countingSyncer) Sync(ctx context.Context) error {
	c.calls.Add(1)
	if c.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func TestSchedulerDisabledWhenIntervalZero(t *testing.T) {
	s := &countingSyncer{}
	sched := NewScheduler(s, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.Run(ctx)
	if s.calls.Load() != 0 {
		t.Fatalf("expected no ticks with interval 0, got %d", s.calls.Load())
	}
}

func TestSchedulerTicksAndContinuesAfterError(t *testing.T) {
	s := &countingSyncer{fail: true}
	sched := NewScheduler(s, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	sched.Run(ctx)
	if s.calls.Load() < 2 {
		t.Fatalf("expected scheduler to keep ticking despite sync errors, got %d calls", s.calls.Load())
	}
}
