package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docpipe/internal/workflow"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := workflow.NewPool(2)
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPoolReturnsTaskError(t *testing.T) {
	pool := workflow.NewPool(1)
	want := errors.New("boom")
	if err := pool.Do(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := workflow.NewPool(1)
	err := pool.Do(context.Background(), func(context.Context) error { panic("bad") })
	if err == nil || !strings.Contains(err.Error(), "worker panic") {
		t.Fatalf("err = %v", err)
	}
	if err := pool.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestPoolCancelWhileWaiting(t *testing.T) {
	pool := workflow.NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func(context.Context) error {
		t.Error("task ran while the only worker was busy")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	close(release)
}

func TestNewPoolMinimumSize(t *testing.T) {
	if got := workflow.NewPool(0).Size(); got != 1 {
		t.Fatalf("size = %d", got)
	}
}
