package ros

import (
	"context"
	"time"
)

// Duration is a non-negative span of {sec, nsec}.
type Duration struct {
	temporal
}

func NewDuration(sec uint32, nsec uint32) Duration {
	sec, nsec = normalizeTemporal(int64(sec), int64(nsec))
	return Duration{temporal{sec, nsec}}
}

// FromGoDuration converts d. Negative durations become zero.
func FromGoDuration(d time.Duration) Duration {
	var result Duration
	if d > 0 {
		result.FromNSec(uint64(d))
	}
	return result
}

func (d Duration) GoDuration() time.Duration {
	return time.Duration(d.ToNSec())
}

func (d *Duration) Add(other Duration) Duration {
	sec, nsec := normalizeTemporal(int64(d.Sec)+int64(other.Sec),
		int64(d.NSec)+int64(other.NSec))
	return Duration{temporal{sec, nsec}}
}

func (d *Duration) Sub(other Duration) Duration {
	sec, nsec := normalizeTemporal(int64(d.Sec)-int64(other.Sec),
		int64(d.NSec)-int64(other.NSec))
	return Duration{temporal{sec, nsec}}
}

func (d *Duration) Cmp(other Duration) int {
	return cmpUint64(d.ToNSec(), other.ToNSec())
}

// Sleep pauses the calling goroutine for d.
func (d *Duration) Sleep() error {
	return d.SleepContext(context.Background())
}

// SleepContext pauses for d or until ctx is done.
func (d *Duration) SleepContext(ctx context.Context) error {
	if d.IsZero() {
		return ctx.Err()
	}
	timer := time.NewTimer(d.GoDuration())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
