package ros

import (
	"context"
	"testing"
	"time"
)

func TestNewDuration(t *testing.T) {
	d := NewDuration(1, 2)
	if d.Sec != 1 {
		t.Fail()
	}
	if d.NSec != 2 {
		t.Fail()
	}
}

func TestNewDurationNormalizes(t *testing.T) {
	d := NewDuration(1, 1000000000)
	if d.Sec != 2 || d.NSec != 0 {
		t.Errorf("got %d.%09d", d.Sec, d.NSec)
	}
}

func TestDurationAdd(t *testing.T) {
	var d1, d2 Duration
	d1.FromNSec(500000000)
	d2.FromNSec(800000000)

	d3 := d1.Add(d2)
	if d3.Sec != 1 {
		t.Error(d3.Sec)
	}
	if d3.NSec != 300000000 {
		t.Error(d3.NSec)
	}
}

func TestDurationSub(t *testing.T) {
	var d1, d2 Duration
	d1.FromNSec(1300000000)
	d2.FromNSec(500000000)

	d3 := d1.Sub(d2)
	if d3.Sec != 0 {
		t.Error(d3.Sec)
	}
	if d3.NSec != 800000000 {
		t.Error(d3.NSec)
	}
}

func TestDurationSubUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	d1 := NewDuration(0, 1)
	d1.Sub(NewDuration(1, 0))
}

func TestGoDurationRoundTrip(t *testing.T) {
	d := FromGoDuration(1500 * time.Millisecond)
	if d.Sec != 1 || d.NSec != 500000000 {
		t.Errorf("got %d.%09d", d.Sec, d.NSec)
	}
	if d.GoDuration() != 1500*time.Millisecond {
		t.Error(d.GoDuration())
	}
	if neg := FromGoDuration(-time.Second); !neg.IsZero() {
		t.Error("negative duration should convert to zero")
	}
}

func TestDurationSleep(t *testing.T) {
	d := NewDuration(0, 100000000)
	start := time.Now()
	d.Sleep()
	elapsed := time.Since(start)
	if elapsed < d.GoDuration() {
		t.Errorf("slept %v, expected at least %v", elapsed, d.GoDuration())
	}
}

func TestDurationSleepContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDuration(10, 0)
	start := time.Now()
	if err := d.SleepContext(ctx); err != context.Canceled {
		t.Errorf("got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("canceled sleep did not return promptly")
	}
}

func TestTimeGoRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	rt := FromGoTime(now)
	if rt.Sec != 1700000000 || rt.NSec != 123456789 {
		t.Errorf("got %d.%09d", rt.Sec, rt.NSec)
	}
	if !rt.GoTime().Equal(now) {
		t.Error(rt.GoTime())
	}
}

func TestTimeArithmetic(t *testing.T) {
	t1 := NewTime(10, 900000000)
	t2 := t1.Add(NewDuration(0, 200000000))
	if t2.Sec != 11 || t2.NSec != 100000000 {
		t.Errorf("got %d.%09d", t2.Sec, t2.NSec)
	}
	d := t2.Diff(t1)
	if d.ToNSec() != 200000000 {
		t.Error(d.ToNSec())
	}
	if t2.Cmp(t1) != 1 || t1.Cmp(t2) != -1 || t1.Cmp(t1) != 0 {
		t.Error("unexpected ordering")
	}
}

func TestRate(t *testing.T) {
	if _, err := NewRate(0); err == nil {
		t.Error("expected error for zero frequency")
	}
	r, err := NewRate(50)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := r.Sleep(); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Errorf("5 cycles at 50Hz took only %v", elapsed)
	}
	if c := r.CycleTime(); c.IsZero() {
		t.Error("cycle time not recorded")
	}
}
