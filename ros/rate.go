package ros

import (
	"context"

	"github.com/pkg/errors"
)

// Rate paces a loop at a fixed frequency.
type Rate struct {
	actualCycleTime   Duration
	expectedCycleTime Duration
	start             Time
}

// NewRate returns a Rate cycling frequency times per second.
func NewRate(frequency float64) (Rate, error) {
	if frequency <= 0 {
		return Rate{}, errors.Errorf("rate must be positive, got %v", frequency)
	}
	var expectedCycleTime Duration
	expectedCycleTime.FromSec(1.0 / frequency)
	return CycleTime(expectedCycleTime), nil
}

func CycleTime(d Duration) Rate {
	return Rate{expectedCycleTime: d, start: Now()}
}

// CycleTime is the length of the last completed cycle.
func (r *Rate) CycleTime() Duration {
	return r.actualCycleTime
}

func (r *Rate) ExpectedCycleTime() Duration {
	return r.expectedCycleTime
}

func (r *Rate) Reset() {
	r.actualCycleTime = Duration{}
	r.start = Now()
}

func (r *Rate) Sleep() error {
	return r.SleepContext(context.Background())
}

// SleepContext waits out the rest of the current cycle. When the loop
// has fallen a whole cycle behind, the schedule restarts from now
// instead of bursting to catch up.
func (r *Rate) SleepContext(ctx context.Context) error {
	remaining := r.expectedCycleTime
	if end := Now(); end.Cmp(r.start) > 0 {
		diff := end.Diff(r.start)
		if r.expectedCycleTime.Cmp(diff) >= 0 {
			remaining = r.expectedCycleTime.Sub(diff)
		} else {
			remaining = Duration{}
		}
	} else {
		remaining = remaining.Add(r.start.Diff(end))
	}
	if err := remaining.SleepContext(ctx); err != nil {
		return err
	}
	now := Now()
	if now.Cmp(r.start) > 0 {
		r.actualCycleTime = now.Diff(r.start)
	}
	r.start = r.start.Add(r.expectedCycleTime)
	if now.Cmp(r.start) > 0 {
		if late := now.Diff(r.start); late.Cmp(r.expectedCycleTime) > 0 {
			r.start = now
		}
	}
	return nil
}
