package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/minbar-live/translation-service/internal/domain"
)

// Usage is a point-in-time snapshot of one provider's accounting.
type Usage struct {
	Provider            string  `json:"provider"`
	CharactersProcessed int64   `json:"characters_processed"`
	CostEstimate        float64 `json:"cost_estimate"`
	RequestsThisWindow  int64   `json:"requests_this_window"`
}

// usageTracker enforces a per-provider character budget over a rolling
// window. check never commits; commit happens only after the chain
// validated the result.
type usageTracker struct {
	mu sync.Mutex

	provider    string
	limitChars  int64 // 0 = unlimited
	window      time.Duration
	costPerChar float64

	windowStart time.Time
	windowChars int64
	requests    int64

	totalChars int64
	cost       float64
}

func newUsageTracker(provider string, limitChars int64, window time.Duration, costPerChar float64) *usageTracker {
	return &usageTracker{
		provider:    provider,
		limitChars:  limitChars,
		window:      window,
		costPerChar: costPerChar,
		windowStart: time.Now(),
	}
}

func (t *usageTracker) roll(now time.Time) {
	if now.Sub(t.windowStart) >= t.window {
		t.windowStart = now
		t.windowChars = 0
		t.requests = 0
	}
}

func (t *usageTracker) check(chars int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roll(time.Now())
	if t.limitChars > 0 && t.windowChars+int64(chars) > t.limitChars {
		return fmt.Errorf("%w: %s would exceed %d chars per window",
			domain.ErrRateLimited, t.provider, t.limitChars)
	}
	return nil
}

func (t *usageTracker) commit(chars int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roll(time.Now())
	t.windowChars += int64(chars)
	t.requests++
	t.totalChars += int64(chars)
	t.cost += float64(chars) * t.costPerChar
}

func (t *usageTracker) snapshot() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roll(time.Now())
	return Usage{
		Provider:            t.provider,
		CharactersProcessed: t.totalChars,
		CostEstimate:        t.cost,
		RequestsThisWindow:  t.requests,
	}
}
