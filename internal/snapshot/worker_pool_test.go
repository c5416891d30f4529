package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2, zap.NewNop())
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()

	t.Run("runs job", func(t *testing.T) {
		var ran bool
		if err := pool.Submit(ctx, "test", func() error { ran = true; return nil }); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if !ran {
			t.Error("job did not run")
		}
	})

	t.Run("returns job error", func(t *testing.T) {
		failure := errors.New("boom")
		if err := pool.Submit(ctx, "test", func() error { return failure }); !errors.Is(err, failure) {
			t.Errorf("err = %v, want job error", err)
		}
	})

	t.Run("recovers panic", func(t *testing.T) {
		err := pool.Submit(ctx, "test", func() error { panic("bad frame") })
		if err == nil {
			t.Fatal("expected error from panicking job")
		}
		// the worker survives
		if err := pool.Submit(ctx, "test", func() error { return nil }); err != nil {
			t.Errorf("Submit after panic failed: %v", err)
		}
	})
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, zap.NewNop())
	pool.Start()
	defer pool.Stop()

	var running, peak atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return pool.Submit(context.Background(), "test", func() error {
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
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency %d, want at most 2", p)
	}
}

func TestWorkerPool_Stop(t *testing.T) {
	pool := NewWorkerPool(1, zap.NewNop())
	pool.Start()
	pool.Stop()
	pool.Stop()

	err := pool.Submit(context.Background(), "test", func() error { return nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("err = %v, want ErrPoolStopped", err)
	}
}
