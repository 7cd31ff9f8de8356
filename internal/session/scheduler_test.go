package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsTask(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	done := make(chan struct{})
	s.Schedule("r1", time.Millisecond, func(context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestSchedulerReplacesPendingTask(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Int32
	s.Schedule("r1", 20*time.Millisecond, func(context.Context) { first.Add(1) })
	s.Schedule("r1", time.Millisecond, func(context.Context) { second.Add(1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the replacement to run, got first=%d second=%d", first.Load(), second.Load())
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	var ran atomic.Bool
	s.Schedule("r1", 10*time.Millisecond, func(context.Context) { ran.Store(true) })
	if !s.Pending("r1") {
		t.Fatal("task not pending")
	}
	s.Cancel("r1")
	if s.Pending("r1") {
		t.Fatal("task still pending after cancel")
	}
	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled task ran")
	}
}

func TestSchedulerCancelStopsRunningTask(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	started := make(chan struct{})
	stopped := make(chan struct{})
	s.Schedule("r1", 0, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})
	<-started
	s.Cancel("r1")
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("running task ignored cancel")
	}
}

// A running task may schedule its successor, as an AI turn re-arms the next
// one.
func TestSchedulerTaskReschedulesItself(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	done := make(chan struct{})
	var step func(ctx context.Context)
	step = func(ctx context.Context) {
		if runs.Add(1) == 3 {
			close(done)
			return
		}
		s.Schedule("r1", time.Millisecond, step)
	}
	s.Schedule("r1", time.Millisecond, step)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("chain stopped after %d runs", runs.Load())
	}
	s.Stop()
	if s.Pending("r1") {
		t.Fatal("pending after stop")
	}
}

func TestSchedulerStopWaitsAndRejects(t *testing.T) {
	s := NewScheduler()
	started := make(chan struct{})
	var finished atomic.Bool
	s.Schedule("r1", 0, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	})
	<-started
	s.Stop()
	if !finished.Load() {
		t.Fatal("Stop returned before the running task")
	}
	s.Schedule("r2", 0, func(context.Context) { t.Error("scheduled after stop") })
	if s.Pending("r2") {
		t.Fatal("task accepted after stop")
	}
	time.Sleep(10 * time.Millisecond)
}
