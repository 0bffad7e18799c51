package latch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestFireOnce(t *testing.T) {
	is := is.New(t)
	l := New()
	is.True(!l.Fired())
	is.True(l.Fire())
	is.True(!l.Fire())
	is.True(l.Fired())
}

func TestWaitAfterFire(t *testing.T) {
	is := is.New(t)
	l := New()
	l.Fire()
	l.Fire()
	is.True(l.Wait(time.Second))
	// Repeated waits never block once set.
	start := time.Now()
	is.True(l.Wait(time.Hour))
	is.True(time.Since(start) < time.Second)
}

func TestWaitReturnsAtFirstFire(t *testing.T) {
	is := is.New(t)
	l := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		for i := 0; i < 5; i++ {
			l.Fire()
			time.Sleep(200 * time.Millisecond)
		}
	}()
	start := time.Now()
	is.True(l.Wait(5 * time.Second))
	is.True(time.Since(start) < 150*time.Millisecond)
}

func TestWaitTimeoutNotEarly(t *testing.T) {
	is := is.New(t)
	l := New()
	timeout := 50 * time.Millisecond
	start := time.Now()
	is.True(!l.Wait(timeout))
	is.True(time.Since(start) >= timeout)
}

func TestWaitNonPositive(t *testing.T) {
	is := is.New(t)
	l := New()
	is.True(!l.Wait(0))
	l.Fire()
	is.True(l.Wait(-time.Second))
}

func TestConcurrentFire(t *testing.T) {
	is := is.New(t)
	l := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Fire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	is.Equal(winners, 1)
}

func TestWaitContext(t *testing.T) {
	is := is.New(t)
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	is.Equal(l.WaitContext(ctx), context.Canceled)
	l.Fire()
	is.NoErr(l.WaitContext(context.Background()))
}
