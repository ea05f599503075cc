package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsAndWaitBlocksUntilDone(t *testing.T) {
	r := New()
	var ran atomic.Bool

	r.Go(context.Background(), "task-1", func(ctx context.Context) {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !r.Wait(ctx) {
		t.Fatal("Wait timed out")
	}
	if !ran.Load() {
		t.Fatal("task did not run to completion before Wait returned")
	}
}

func TestCancelStopsTask(t *testing.T) {
	r := New()
	done := make(chan struct{})

	r.Go(context.Background(), "task-2", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	r.Cancel("task-2")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not canceled")
	}
}

func TestWaitReturnsFalseOnTimeout(t *testing.T) {
	r := New()
	r.Go(context.Background(), "slow", func(ctx context.Context) {
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if r.Wait(ctx) {
		t.Fatal("Wait should have timed out while the task is still running")
	}

	r.Cancel("slow")
}
