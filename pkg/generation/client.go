// Package generation wraps a single call to the generative-content
// provider: admission through the shared rate limiter, a hard timeout,
// classified retries with full-jitter backoff, best-effort status
// reporting and retry telemetry.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/model"
	"ghostwriter/pkg/ratelimit"
	"ghostwriter/pkg/tracker"
)

// StatusSink receives best-effort phase updates during a call.
// Sink failures are swallowed; observability never blocks generation.
type StatusSink func(jobID string, phase model.Phase, attempt int)

// Options configures the client.
type Options struct {
	Timeout    time.Duration // hard per-attempt timeout, default 120s
	MaxRetries int           // additional attempts after the first, default 5
	BackoffMin time.Duration // backoff base, default 1s
	BackoffMax time.Duration // backoff cap, default 30s
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 5
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	return o
}

// Request is one generation call.
type Request struct {
	JobID string
	Model string
	Parts []llm.Part
	Sink  StatusSink // optional
}

// Telemetry records what a call cost.
type Telemetry struct {
	Attempts    int
	Retries     int
	RateWait    time.Duration
	BackoffWait time.Duration
	Throttles   int
	Overloads   int
}

// Result is a completed call.
type Result struct {
	Text      string
	Telemetry Telemetry
}

// Client issues generation calls through the shared limiter.
type Client struct {
	provider llm.Provider
	limiter  *ratelimit.Limiter
	tracker  *tracker.Tracker
	opts     Options
}

// NewClient creates a Client.
func NewClient(provider llm.Provider, limiter *ratelimit.Limiter, t *tracker.Tracker, opts Options) *Client {
	return &Client{
		provider: provider,
		limiter:  limiter,
		tracker:  t,
		opts:     opts.withDefaults(),
	}
}

// Generate runs one call with retries. The returned Result is non-nil
// even on failure so callers always see the telemetry. The limiter slot
// is released on every path.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	emit(req.Sink, req.JobID, model.PhaseQueued, 0)

	rateStart := time.Now()
	release, err := c.limiter.Acquire(ctx)
	res.Telemetry.RateWait = time.Since(rateStart)
	if err != nil {
		emit(req.Sink, req.JobID, model.PhaseFailed, 0)
		return res, fmt.Errorf("rate limiter admission: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		res.Telemetry.Attempts = attempt + 1
		if attempt == 0 {
			emit(req.Sink, req.JobID, model.PhaseGenerating, attempt+1)
		} else {
			res.Telemetry.Retries++
			emit(req.Sink, req.JobID, model.PhaseRetrying, attempt+1)
		}

		text, callErr := c.attempt(ctx, req)
		if callErr == nil {
			c.limiter.NoteRecovery()
			res.Text = text
			emit(req.Sink, req.JobID, model.PhaseDone, attempt+1)
			return res, nil
		}
		lastErr = callErr

		switch {
		case llm.IsThrottle(callErr):
			res.Telemetry.Throttles++
			c.limiter.NoteThrottle()
		case llm.IsOverload(callErr):
			res.Telemetry.Overloads++
			c.limiter.NoteRecovery()
		default:
			c.limiter.NoteRecovery()
		}

		if !llm.IsRetryable(callErr) || attempt == c.opts.MaxRetries {
			break
		}

		wait := fullJitter(attempt, c.opts.BackoffMin, c.opts.BackoffMax)
		slog.Debug("Generation: backing off before retry",
			"job", req.JobID, "attempt", attempt+1, "wait", wait, "error", callErr)
		backoffStart := time.Now()
		select {
		case <-time.After(wait):
			res.Telemetry.BackoffWait += time.Since(backoffStart)
		case <-ctx.Done():
			res.Telemetry.BackoffWait += time.Since(backoffStart)
			emit(req.Sink, req.JobID, model.PhaseFailed, attempt+1)
			return res, ctx.Err()
		}
	}

	emit(req.Sink, req.JobID, model.PhaseFailed, res.Telemetry.Attempts)
	return res, fmt.Errorf("generation failed after %d attempts: %w", res.Telemetry.Attempts, lastErr)
}

// attempt runs one provider call under the hard timeout and normalizes
// timeout errors so classification sees context.DeadlineExceeded.
func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	text, err := c.provider.Generate(callCtx, req.Model, req.Parts)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			if c.tracker != nil {
				c.tracker.TrackTimeout(c.provider.Name())
			}
			return "", fmt.Errorf("call timed out after %v: %w", c.opts.Timeout, context.DeadlineExceeded)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyText
	}
	return text, nil
}

// emit invokes the sink, swallowing panics. Status updates are
// advisory; a broken sink must never take a job down.
func emit(sink StatusSink, jobID string, phase model.Phase, attempt int) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Generation: status sink panicked", "job", jobID, "phase", phase, "panic", r)
		}
	}()
	sink(jobID, phase, attempt)
}
