package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minbar-live/translation-service/internal/domain"
)

// Chain tries adapters in order until one returns a result that passes
// validation. Unavailable or rate-limited adapters are skipped without a
// network call; usage is committed only for the winning adapter.
type Chain struct {
	adapters []Adapter
}

func NewChain(adapters ...Adapter) *Chain {
	return &Chain{adapters: adapters}
}

// Translate runs the fallback sequence. preferred, when set, moves that
// adapter to the front; the remaining adapters keep their configured order.
func (c *Chain) Translate(ctx context.Context, req Request, preferred string) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" || req.Target == "" {
		return nil, fmt.Errorf("%w: text and target language are required", domain.ErrValidation)
	}

	var lastErr error
	for _, a := range c.ordered(preferred) {
		if !a.Available() {
			continue
		}
		chars := len(req.Text)
		if err := a.CheckRateLimit(chars); err != nil {
			lastErr = err
			continue
		}
		res, err := a.Translate(ctx, req)
		if err != nil {
			slog.Warn("provider call failed, trying next",
				"provider", a.Name(), "target", req.Target, "err", err)
			lastErr = err
			continue
		}
		if err := validateResult(req, res); err != nil {
			slog.Warn("provider result rejected, trying next",
				"provider", a.Name(), "target", req.Target, "err", err)
			lastErr = err
			continue
		}
		a.CommitUsage(chars)
		res.Provider = a.Name()
		return res, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider configured")
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrAllProvidersFailed, lastErr)
}

// DetectLanguage resolves the language of text via the first available
// adapter (detection is local, so the first one always answers).
func (c *Chain) DetectLanguage(text string) (domain.Language, error) {
	for _, a := range c.adapters {
		if a.Available() {
			return a.DetectLanguage(text)
		}
	}
	return "", domain.ErrAllProvidersFailed
}

// Usage reports accounting for every adapter in chain order.
func (c *Chain) Usage() []Usage {
	out := make([]Usage, 0, len(c.adapters))
	for _, a := range c.adapters {
		out = append(out, a.Usage())
	}
	return out
}

func (c *Chain) ordered(preferred string) []Adapter {
	if preferred == "" {
		return c.adapters
	}
	out := make([]Adapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		if a.Name() == preferred {
			out = append(out, a)
		}
	}
	for _, a := range c.adapters {
		if a.Name() != preferred {
			out = append(out, a)
		}
	}
	return out
}

// validateResult applies the sanity checks from the fallback policy: an
// empty result, a result identical to the source text for a real language
// pair, or a nonsensical confidence all count as provider failure.
func validateResult(req Request, res *Result) error {
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return fmt.Errorf("empty translation")
	}
	if req.Source != req.Target && strings.EqualFold(strings.TrimSpace(res.Text), strings.TrimSpace(req.Text)) {
		return fmt.Errorf("translation identical to source")
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", res.Confidence)
	}
	return nil
}
