package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks generation call outcomes per provider.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// ProviderStats holds counters for one provider.
// Fields are accessed atomically.
type ProviderStats struct {
	Success   int64
	Failure   int64
	Throttle  int64 // HTTP 429 responses
	Overload  int64 // HTTP 503 responses
	Timeout   int64
	EmptyText int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*ProviderStats)}
}

func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

func (t *Tracker) TrackSuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).Success, 1)
}

func (t *Tracker) TrackFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).Failure, 1)
}

func (t *Tracker) TrackThrottle(provider string) {
	atomic.AddInt64(&t.getStats(provider).Throttle, 1)
}

func (t *Tracker) TrackOverload(provider string) {
	atomic.AddInt64(&t.getStats(provider).Overload, 1)
}

func (t *Tracker) TrackTimeout(provider string) {
	atomic.AddInt64(&t.getStats(provider).Timeout, 1)
}

func (t *Tracker) TrackEmptyText(provider string) {
	atomic.AddInt64(&t.getStats(provider).EmptyText, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats, len(t.stats))
	for k, v := range t.stats {
		result[k] = ProviderStats{
			Success:   atomic.LoadInt64(&v.Success),
			Failure:   atomic.LoadInt64(&v.Failure),
			Throttle:  atomic.LoadInt64(&v.Throttle),
			Overload:  atomic.LoadInt64(&v.Overload),
			Timeout:   atomic.LoadInt64(&v.Timeout),
			EmptyText: atomic.LoadInt64(&v.EmptyText),
		}
	}
	return result
}
