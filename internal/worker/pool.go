package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned by submissions after ShutdownAll.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrPoolSaturated is returned when MaxSlots is reached and every slot is busy.
	ErrPoolSaturated = errors.New("worker pool is saturated")

	// ErrNilJob is returned when a nil job or size function is submitted.
	ErrNilJob = errors.New("nil job")
)

// slot is one reusable unit of concurrency.
type slot struct {
	id      int
	state   atomic.Int32
	scratch []byte // owned by the job holding the slot
}

// Pool runs jobs on reusable slots.
type Pool struct {
	opts   Options
	slots  []*slot
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates an empty pool. Slots are allocated on demand.
func New(opts Options) *Pool {
	if opts.Name == "" {
		opts.Name = "default"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		opts:   opts,
		logger: logger.With("pool", opts.Name),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit runs job on a free slot, or on a new slot when none is free.
// It never waits for a running job.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	return p.start(func(ctx context.Context, _ *slot) {
		job(ctx)
	})
}

// SubmitWithScratch is Submit with access to the slot's scratch buffer.
// The buffer is allocated with size() bytes the first time the slot needs
// one and reallocated only when size() grows past its capacity.
func (p *Pool) SubmitWithScratch(job ScratchJob, size SizeFunc) error {
	if job == nil || size == nil {
		return ErrNilJob
	}
	return p.start(func(ctx context.Context, s *slot) {
		n := max(size(), 0)
		if cap(s.scratch) < n {
			s.scratch = make([]byte, n)
		}
		job(ctx, s.scratch[:n])
	})
}

// start claims a slot and launches run on it.
func (p *Pool) start(run func(ctx context.Context, s *slot)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		jobsRejected.WithLabelValues(p.opts.Name, "closed").Inc()
		return ErrPoolClosed
	}

	s := p.claimLocked()
	if s == nil {
		if p.opts.MaxSlots > 0 && len(p.slots) >= p.opts.MaxSlots {
			p.mu.Unlock()
			jobsRejected.WithLabelValues(p.opts.Name, "saturated").Inc()
			return fmt.Errorf("%w: %d slots busy", ErrPoolSaturated, p.opts.MaxSlots)
		}
		s = &slot{id: len(p.slots)}
		s.state.Store(int32(StateBusy))
		p.slots = append(p.slots, s)
		slotsTotal.WithLabelValues(p.opts.Name).Set(float64(len(p.slots)))
		p.logger.Debug("Slot allocated", "slot", s.id, "slots", len(p.slots))
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.submitted.Add(1)
	jobsSubmitted.WithLabelValues(p.opts.Name).Inc()
	slotsBusy.WithLabelValues(p.opts.Name).Inc()

	go p.run(s, run)
	return nil
}

// claimLocked returns the first free slot, marked busy (must hold lock).
func (p *Pool) claimLocked() *slot {
	for _, s := range p.slots {
		if s.state.CompareAndSwap(int32(StateFree), int32(StateBusy)) {
			return s
		}
	}
	return nil
}

// run executes a job and releases its slot once the job has returned.
func (p *Pool) run(s *slot, fn func(ctx context.Context, s *slot)) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			jobsFailed.WithLabelValues(p.opts.Name).Inc()
			p.logger.Error("Job panicked", "slot", s.id, "panic", r)
		}
		slotsBusy.WithLabelValues(p.opts.Name).Dec()
		s.state.Store(int32(StateFree))
	}()

	fn(p.ctx, s)

	p.completed.Add(1)
	jobsCompleted.WithLabelValues(p.opts.Name).Inc()
}

// ShutdownAll cancels every job's context and refuses further submissions.
// It does not wait; use Wait for that. Calling it again is a no-op.
func (p *Pool) ShutdownAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	busy := p.busyLocked()
	p.mu.Unlock()

	p.cancel()
	p.logger.Info("Worker pool shut down", "busy", busy)
}

// Wait blocks until every submitted job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// WaitTimeout is Wait bounded by d. It reports whether all jobs returned.
func (p *Pool) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Slots returns the number of allocated slots.
func (p *Pool) Slots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Busy returns the number of slots currently running a job.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busyLocked()
}

func (p *Pool) busyLocked() int {
	n := 0
	for _, s := range p.slots {
		if State(s.state.Load()) == StateBusy {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	slots := len(p.slots)
	busy := p.busyLocked()
	closed := p.closed
	p.mu.Unlock()

	return Stats{
		Name:      p.opts.Name,
		Slots:     slots,
		Busy:      busy,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Closed:    closed,
	}
}
