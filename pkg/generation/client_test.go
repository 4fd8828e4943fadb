package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/model"
	"ghostwriter/pkg/ratelimit"
	"ghostwriter/pkg/tracker"
)

func newTestClient(provider llm.Provider, limiter *ratelimit.Limiter) *Client {
	return NewClient(provider, limiter, tracker.New(), Options{
		Timeout:    time.Second,
		MaxRetries: 5,
		BackoffMin: time.Millisecond,
		BackoffMax: 5 * time.Millisecond,
	})
}

type phaseRecord struct {
	phase   model.Phase
	attempt int
}

func recordingSink() (StatusSink, func() []phaseRecord) {
	var mu sync.Mutex
	var phases []phaseRecord
	sink := func(jobID string, phase model.Phase, attempt int) {
		mu.Lock()
		phases = append(phases, phaseRecord{phase, attempt})
		mu.Unlock()
	}
	return sink, func() []phaseRecord {
		mu.Lock()
		defer mu.Unlock()
		out := make([]phaseRecord, len(phases))
		copy(out, phases)
		return out
	}
}

func TestGenerateSuccess(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: "본문입니다"})
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := newTestClient(mock, limiter)

	sink, phases := recordingSink()
	res, err := client.Generate(context.Background(), Request{
		JobID: "job-1",
		Model: "gemini-2.5-flash",
		Parts: []llm.Part{llm.TextPart("프롬프트")},
		Sink:  sink,
	})
	require.NoError(t, err)
	require.Equal(t, "본문입니다", res.Text)
	require.Equal(t, 1, res.Telemetry.Attempts)
	require.Equal(t, 0, res.Telemetry.Retries)

	got := phases()
	require.Equal(t, model.PhaseQueued, got[0].phase)
	require.Equal(t, model.PhaseGenerating, got[1].phase)
	require.Equal(t, model.PhaseDone, got[len(got)-1].phase)

	// Slot released after the call.
	require.Equal(t, 0, limiter.Snapshot().Active)
}

func TestGenerateRetriesThrottle(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Err: llm.NewStatusError(429, "quota")},
		llm.MockResponse{Err: llm.NewStatusError(503, "overloaded")},
		llm.MockResponse{Text: "살아났다"},
	)
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 10})
	client := newTestClient(mock, limiter)

	sink, phases := recordingSink()
	res, err := client.Generate(context.Background(), Request{JobID: "job-2", Model: "m", Sink: sink})
	require.NoError(t, err)
	require.Equal(t, 3, res.Telemetry.Attempts)
	require.Equal(t, 2, res.Telemetry.Retries)
	require.Equal(t, 1, res.Telemetry.Throttles)
	require.Equal(t, 1, res.Telemetry.Overloads)

	var sawRetrying bool
	for _, p := range phases() {
		if p.phase == model.PhaseRetrying {
			sawRetrying = true
		}
	}
	require.True(t, sawRetrying)
}

func TestGenerateTerminalStatus(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Err: llm.NewStatusError(400, "bad request")})
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := newTestClient(mock, limiter)

	res, err := client.Generate(context.Background(), Request{JobID: "job-3", Model: "m"})
	require.Error(t, err)
	require.Equal(t, 1, res.Telemetry.Attempts, "terminal status must not be retried")

	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 400, se.Code)
	require.Equal(t, 1, mock.CallCount())
}

func TestGenerateEmptyTextRetried(t *testing.T) {
	mock := llm.NewMock(
		llm.MockResponse{Text: "   \n "},
		llm.MockResponse{Text: "내용"},
	)
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := newTestClient(mock, limiter)

	res, err := client.Generate(context.Background(), Request{JobID: "job-4", Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "내용", res.Text)
	require.Equal(t, 2, res.Telemetry.Attempts)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Err: llm.NewStatusError(503, "down")})
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 100})
	client := NewClient(mock, limiter, tracker.New(), Options{
		Timeout:    time.Second,
		MaxRetries: 2,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	})

	sink, phases := recordingSink()
	res, err := client.Generate(context.Background(), Request{JobID: "job-5", Model: "m", Sink: sink})
	require.Error(t, err)
	require.Equal(t, 3, res.Telemetry.Attempts)
	require.True(t, llm.IsOverload(err), "original status must survive wrapping")

	got := phases()
	require.Equal(t, model.PhaseFailed, got[len(got)-1].phase)
	require.Equal(t, 0, limiter.Snapshot().Active, "slot released on failure path")
}

func TestThreeThrottlesReduceLimit(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Err: llm.NewStatusError(429, "quota")})
	limiter := ratelimit.New(ratelimit.Options{Limit: 5, Floor: 3, ThrottleThreshold: 3})

	var events []ratelimit.Reduction
	var mu sync.Mutex
	limiter.Subscribe(func(r ratelimit.Reduction) {
		mu.Lock()
		events = append(events, r)
		mu.Unlock()
	})

	client := NewClient(mock, limiter, tracker.New(), Options{
		Timeout:    time.Second,
		MaxRetries: 2, // three attempts, three 429s
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	})

	_, err := client.Generate(context.Background(), Request{JobID: "job-6", Model: "m"})
	require.Error(t, err)

	require.Equal(t, 4, limiter.Snapshot().Limit, "limit reduced by exactly 1")
	mu.Lock()
	require.Len(t, events, 1)
	require.Equal(t, 5, events[0].Previous)
	require.Equal(t, 4, events[0].New)
	mu.Unlock()
}

// slowProvider blocks until the per-attempt deadline fires.
type slowProvider struct{}

func (slowProvider) Name() string { return "slowco" }

func (slowProvider) Generate(ctx context.Context, model string, parts []llm.Part) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowProvider) HealthCheck(ctx context.Context) error { return nil }

func TestTimeoutTrackedUnderProviderName(t *testing.T) {
	tr := tracker.New()
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := NewClient(slowProvider{}, limiter, tr, Options{
		Timeout:    5 * time.Millisecond,
		MaxRetries: 1,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	})

	_, err := client.Generate(context.Background(), Request{JobID: "job-9", Model: "m"})
	require.Error(t, err)

	snap := tr.Snapshot()
	require.Equal(t, int64(2), snap["slowco"].Timeout, "both attempts tracked under the provider's name")
	require.Len(t, snap, 1, "no stats under any other label")
}

func TestSinkPanicSwallowed(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Text: "ok"})
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := newTestClient(mock, limiter)

	sink := func(string, model.Phase, int) { panic("broken sink") }
	res, err := client.Generate(context.Background(), Request{JobID: "job-7", Model: "m", Sink: sink})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Text)
}

func TestGenerateCancelledDuringBackoff(t *testing.T) {
	mock := llm.NewMock(llm.MockResponse{Err: llm.NewStatusError(503, "down")})
	limiter := ratelimit.New(ratelimit.Options{Limit: 2, Floor: 1, ThrottleThreshold: 3})
	client := NewClient(mock, limiter, tracker.New(), Options{
		Timeout:    time.Second,
		MaxRetries: 5,
		BackoffMin: time.Hour, // force a long backoff
		BackoffMax: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := client.Generate(ctx, Request{JobID: "job-8", Model: "m"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, limiter.Snapshot().Active)
}
