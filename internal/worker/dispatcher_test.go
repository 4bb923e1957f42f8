package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg)
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunReturnsJobResult(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	want := errors.New("boom")
	if err := d.Run(context.Background(), 1, func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected job error, got %v", err)
	}
	ran := false
	if err := d.Run(context.Background(), 1, func(context.Context) error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("Run: ran=%v err=%v", ran, err)
	}
}

func TestSameUserJobsAreSerialized(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 2, MaxWorkers: 4, QueueSize: 16})
	var (
		active    atomic.Int32
		maxActive atomic.Int32
		wg        sync.WaitGroup
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Run(context.Background(), 7, func(context.Context) error {
				n := active.Add(1)
				for {
					cur := maxActive.Load()
					if n <= cur || maxActive.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := maxActive.Load(); got != 1 {
		t.Fatalf("expected one job per user at a time, saw %d", got)
	}
}

func TestDifferentUsersRunInParallel(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	started := make(chan int64, 2)
	release := make(chan struct{})
	errs := make(chan error, 2)
	for _, user := range []int64{1, 2} {
		go func() {
			errs <- d.Run(context.Background(), user, func(context.Context) error {
				started <- user
				<-release
				return nil
			})
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("users were not run concurrently")
		}
	}
	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
}

func TestRunRejectsWhenQueueFull(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	release := make(chan struct{})
	running := make(chan struct{})
	go d.Run(context.Background(), 1, func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running

	queued := make(chan error, 1)
	go func() {
		queued <- d.Run(context.Background(), 1, func(context.Context) error { return nil })
	}()
	waitFor(t, func() bool { return d.pending.Load() == 1 })

	if err := d.Run(context.Background(), 2, func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	close(release)
	if err := <-queued; err != nil {
		t.Fatalf("queued job: %v", err)
	}
}

func TestRunSkipsCancelledJob(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	release := make(chan struct{})
	running := make(chan struct{})
	go d.Run(context.Background(), 1, func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running

	ctx, cancel := context.WithCancel(context.Background())
	var called atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, 1, func(context.Context) error { called.Store(true); return nil })
	}()
	waitFor(t, func() bool { return d.pending.Load() == 1 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	if err := d.Run(context.Background(), 1, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if called.Load() {
		t.Fatalf("cancelled job must not run")
	}
}

func TestRunRecoversPanics(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2})
	err := d.Run(context.Background(), 3, func(context.Context) error { panic("bad input") })
	if err == nil {
		t.Fatalf("expected error from panicking job")
	}
	if err := d.Run(context.Background(), 3, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestStopRejectsNewJobsAndRetiresIdleWorkers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 2, QueueSize: 2})
	waitFor(t, func() bool { return d.pool.size() == 2 })
	d.Stop()
	d.Stop()
	if err := d.Run(context.Background(), 1, func(context.Context) error { return nil }); !errors.Is(err, errDispatcherStopped) {
		t.Fatalf("expected stopped error, got %v", err)
	}
	waitFor(t, func() bool { return d.pool.size() == 0 })
}
