package runner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ghostwriter/pkg/ratelimit"
)

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int
	Processed uint64
	Succeeded uint64
	Failed    uint64
}

// Pool runs a fixed set of workers that claim and execute jobs. Its
// effective worker count only ever shrinks, mirroring the rate
// limiter's safe-mode reductions.
type Pool struct {
	runner *Runner
	store  JobStore
	poll   time.Duration

	mu      sync.Mutex
	allowed int

	processed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a pool of the given size. poll is the idle wait
// between claims when the queue is empty.
func NewPool(r *Runner, store JobStore, workers int, poll time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Pool{runner: r, store: store, poll: poll, allowed: workers}
}

// Run blocks until ctx is cancelled, then drains: workers finish
// their in-flight job before exiting.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	workers := p.allowed
	p.mu.Unlock()

	slog.Info("worker pool starting", "workers", workers)
	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	log := slog.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}
		if id >= p.Allowed() {
			log.Info("worker retired by concurrency reduction")
			return
		}

		job, err := p.store.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("claim failed", "error", err)
			if !sleepCtx(ctx, p.poll) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.poll) {
				return
			}
			continue
		}

		p.processed.Add(1)
		if err := p.runner.Run(ctx, p.store, job); err != nil {
			p.failed.Add(1)
		} else {
			p.succeeded.Add(1)
		}
	}
}

// Allowed returns the current effective worker count.
func (p *Pool) Allowed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allowed
}

// Reduce mirrors a rate-limiter reduction onto the pool: the worker
// ceiling drops to the new limit, never below one and never upward.
func (p *Pool) Reduce(ev ratelimit.Reduction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := ev.New
	if target < 1 {
		target = 1
	}
	if target < p.allowed {
		slog.Warn("shrinking worker pool", "from", p.allowed, "to", target, "reason", ev.Reason)
		p.allowed = target
	}
}

// Stats returns a consistent-enough snapshot of counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.Allowed(),
		Processed: p.processed.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}
