// Package ratelimit provides process-wide admission control for calls
// to the generative-content provider: a bounded number of concurrent
// holders, a minimum spacing between admissions, and adaptive
// self-throttling driven by provider 429 responses.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a Limiter.
type Options struct {
	Limit             int           // initial concurrency ceiling
	Floor             int           // safe mode never reduces below this
	MinInterval       time.Duration // minimum spacing between admissions
	ThrottleThreshold int           // consecutive 429s before reducing
}

// Reduction describes one safe-mode limit reduction.
type Reduction struct {
	Previous int
	New      int
	Reason   string
	At       time.Time
}

// ReductionListener receives safe-mode reduction events so other
// concurrency-bounded consumers can mirror the new ceiling.
type ReductionListener func(Reduction)

// Snapshot is a point-in-time view of limiter state.
type Snapshot struct {
	Active               int
	Waiting              int
	Limit                int
	ConsecutiveThrottles int
}

type waiter struct {
	ch chan struct{}
}

// Limiter is the process-wide admission controller. All mutable state
// lives behind one mutex; the spacing limiter is internally synchronized.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	floor       int
	threshold   int
	active      int
	waiters     []*waiter
	consecutive int
	listeners   []ReductionListener

	spacing *rate.Limiter
}

// New creates a Limiter. Zero or negative option values fall back to
// defaults: limit 8, floor 3, threshold 3.
func New(opts Options) *Limiter {
	if opts.Limit < 1 {
		opts.Limit = 8
	}
	if opts.Floor < 1 {
		opts.Floor = 3
	}
	if opts.Floor > opts.Limit {
		opts.Floor = opts.Limit
	}
	if opts.ThrottleThreshold < 1 {
		opts.ThrottleThreshold = 3
	}

	spacing := rate.NewLimiter(rate.Inf, 1)
	if opts.MinInterval > 0 {
		spacing = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}

	return &Limiter{
		limit:     opts.Limit,
		floor:     opts.Floor,
		threshold: opts.ThrottleThreshold,
		spacing:   spacing,
	}
}

// Acquire blocks until a slot is free and the minimum inter-call spacing
// has elapsed, then returns an idempotent release function. Waiters are
// served in FIFO order. On context cancellation no slot is held.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	if l.active < l.limit && len(l.waiters) == 0 {
		l.active++
		l.mu.Unlock()
	} else {
		w := &waiter{ch: make(chan struct{})}
		l.waiters = append(l.waiters, w)
		l.mu.Unlock()

		select {
		case <-w.ch:
		case <-ctx.Done():
			l.mu.Lock()
			select {
			case <-w.ch:
				// Granted concurrently with cancellation; hand the slot back.
				l.mu.Unlock()
				l.releaseSlot()
			default:
				l.removeWaiter(w)
				l.mu.Unlock()
			}
			return nil, ctx.Err()
		}
	}

	// Slot held; enforce spacing since the last admission.
	if err := l.spacing.Wait(ctx); err != nil {
		l.releaseSlot()
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(l.releaseSlot) }, nil
}

// removeWaiter drops w from the queue. Caller holds l.mu.
func (l *Limiter) removeWaiter(w *waiter) {
	for i, q := range l.waiters {
		if q == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func (l *Limiter) releaseSlot() {
	l.mu.Lock()
	l.active--
	l.wakeLocked()
	l.mu.Unlock()
}

// wakeLocked admits queued waiters while capacity remains. Caller holds l.mu.
func (l *Limiter) wakeLocked() {
	for len(l.waiters) > 0 && l.active < l.limit {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.active++
		close(w.ch)
	}
}

// SetLimit changes the concurrency ceiling. Active holders are
// unaffected; future acquires respect the new ceiling. The ceiling
// never goes below 1.
func (l *Limiter) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	l.limit = n
	l.wakeLocked()
	l.mu.Unlock()
}

// Subscribe registers a listener for safe-mode reductions.
func (l *Limiter) Subscribe(fn ReductionListener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// NoteThrottle records one provider-throttle (429) response. When the
// consecutive-throttle count reaches the threshold, the limit drops by
// one (never below the floor), the counter resets, and listeners are
// notified. Reduction is monotone; the limit is never raised here.
func (l *Limiter) NoteThrottle() {
	var event *Reduction
	var listeners []ReductionListener

	l.mu.Lock()
	l.consecutive++
	if l.consecutive >= l.threshold {
		l.consecutive = 0
		if l.limit > l.floor {
			prev := l.limit
			l.limit--
			event = &Reduction{
				Previous: prev,
				New:      l.limit,
				Reason:   "consecutive provider throttling",
				At:       time.Now(),
			}
			listeners = append(listeners, l.listeners...)
		}
	}
	l.mu.Unlock()

	if event == nil {
		return
	}
	slog.Warn("RateLimiter: safe mode reduced concurrency",
		"previous", event.Previous, "new", event.New)
	// Listeners run outside the mutex; a slow listener must not stall admission.
	for _, fn := range listeners {
		fn(*event)
	}
}

// NoteRecovery records a successful or non-throttle outcome, resetting
// the consecutive-throttle counter.
func (l *Limiter) NoteRecovery() {
	l.mu.Lock()
	l.consecutive = 0
	l.mu.Unlock()
}

// Snapshot returns the current limiter state.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Active:               l.active,
		Waiting:              len(l.waiters),
		Limit:                l.limit,
		ConsecutiveThrottles: l.consecutive,
	}
}
