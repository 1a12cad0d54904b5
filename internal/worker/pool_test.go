package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func poolTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolSequentialReuseSingleSlot(t *testing.T) {
	pool := New(Options{Name: "test-sequential", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	var ran atomic.Int32
	for range 10 {
		if err := pool.Submit(func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		pool.Wait()
	}

	if got := ran.Load(); got != 10 {
		t.Errorf("expected 10 jobs to run, got %d", got)
	}
	if got := pool.Slots(); got != 1 {
		t.Errorf("expected 1 slot for sequential jobs, got %d", got)
	}
}

func TestPoolConcurrentJobsGrowSlots(t *testing.T) {
	pool := New(Options{Name: "test-concurrent", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	const k = 8
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(k)

	for range k {
		err := pool.Submit(func(context.Context) {
			started.Done()
			<-release
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	started.Wait()

	if got := pool.Slots(); got != k {
		t.Errorf("expected %d slots, got %d", k, got)
	}
	if got := pool.Busy(); got != k {
		t.Errorf("expected %d busy slots, got %d", k, got)
	}

	close(release)
	pool.Wait()

	if got := pool.Busy(); got != 0 {
		t.Errorf("expected 0 busy slots after release, got %d", got)
	}

	// Freed slots are reused instead of growing the table.
	for range k {
		if err := pool.Submit(func(context.Context) {}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	pool.Wait()
	if got := pool.Slots(); got != k {
		t.Errorf("expected slot table to stay at %d, got %d", k, got)
	}
}

func TestPoolConcurrentSubmittersClaimDistinctSlots(t *testing.T) {
	pool := New(Options{Name: "test-claim", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	const submitters = 16
	release := make(chan struct{})
	var inJob sync.WaitGroup
	inJob.Add(submitters)

	var seen sync.Map
	var dup atomic.Bool

	var wg sync.WaitGroup
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SubmitWithScratch(func(_ context.Context, scratch []byte) {
				if _, loaded := seen.LoadOrStore(&scratch[0], true); loaded {
					dup.Store(true)
				}
				inJob.Done()
				<-release
			}, func() int { return 16 })
		}()
	}
	wg.Wait()
	inJob.Wait()
	close(release)
	pool.Wait()

	if dup.Load() {
		t.Error("two concurrent jobs shared a slot's scratch buffer")
	}
	if got := pool.Slots(); got != submitters {
		t.Errorf("expected %d slots, got %d", submitters, got)
	}
}

func TestPoolScratchAllocatedOncePerSlot(t *testing.T) {
	pool := New(Options{Name: "test-scratch", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	var calls atomic.Int32
	var first, second *byte

	size := func() int {
		calls.Add(1)
		return 64
	}

	_ = pool.SubmitWithScratch(func(_ context.Context, scratch []byte) {
		if len(scratch) != 64 {
			t.Errorf("expected 64-byte scratch, got %d", len(scratch))
		}
		scratch[0] = 0xAB
		first = &scratch[0]
	}, size)
	pool.Wait()

	_ = pool.SubmitWithScratch(func(_ context.Context, scratch []byte) {
		second = &scratch[0]
		if scratch[0] != 0xAB {
			t.Error("expected scratch contents to persist across jobs on the same slot")
		}
	}, size)
	pool.Wait()

	if first != second {
		t.Error("expected the same scratch buffer to be reused")
	}
}

func TestPoolScratchGrows(t *testing.T) {
	pool := New(Options{Name: "test-grow", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	sizes := []int{8, 4, 32}
	for _, n := range sizes {
		want := n
		_ = pool.SubmitWithScratch(func(_ context.Context, scratch []byte) {
			if len(scratch) != want {
				t.Errorf("expected scratch of %d bytes, got %d", want, len(scratch))
			}
		}, func() int { return want })
		pool.Wait()
	}
}

func TestPoolShutdownAll(t *testing.T) {
	pool := New(Options{Name: "test-shutdown", Logger: poolTestLogger()})

	cancelled := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	returned := make(chan struct{})
	go func() {
		pool.ShutdownAll()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("ShutdownAll blocked")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}

	// Idempotent and safe from another goroutine.
	done := make(chan struct{})
	go func() {
		pool.ShutdownAll()
		close(done)
	}()
	<-done
	pool.ShutdownAll()

	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed after shutdown, got %v", err)
	}
	if !pool.WaitTimeout(time.Second) {
		t.Error("jobs did not return after shutdown")
	}
	if !pool.Stats().Closed {
		t.Error("expected Stats to report closed")
	}
}

func TestPoolMaxSlots(t *testing.T) {
	pool := New(Options{Name: "test-max", MaxSlots: 2, Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	release := make(chan struct{})
	for range 2 {
		if err := pool.Submit(func(context.Context) { <-release }); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolSaturated) {
		t.Errorf("expected ErrPoolSaturated, got %v", err)
	}

	close(release)
	pool.Wait()

	if err := pool.Submit(func(context.Context) {}); err != nil {
		t.Errorf("expected submit to succeed after slots freed, got %v", err)
	}
	pool.Wait()
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := New(Options{Name: "test-panic", Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	if err := pool.Submit(func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	pool.Wait()

	if err := pool.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	pool.Wait()

	stats := pool.Stats()
	if stats.Failed != 1 || stats.Completed != 1 {
		t.Errorf("expected 1 failed and 1 completed, got %+v", stats)
	}
	if stats.Slots != 1 {
		t.Errorf("expected panicking slot to be reused, got %d slots", stats.Slots)
	}
	if got := testutil.ToFloat64(jobsFailed.WithLabelValues("test-panic")); got != 1 {
		t.Errorf("expected failed metric 1, got %v", got)
	}
}

func TestPoolNilJob(t *testing.T) {
	pool := New(Options{Logger: poolTestLogger()})
	defer pool.ShutdownAll()

	if err := pool.Submit(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob, got %v", err)
	}
	if err := pool.SubmitWithScratch(func(context.Context, []byte) {}, nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob for nil size func, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateFree.String() != "free" || StateBusy.String() != "busy" {
		t.Error("unexpected state names")
	}
}
