package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/minbar-live/translation-service/internal/domain"
)

// lingvaConfidence: Lingva proxies Google Translate without a score.
const lingvaConfidence = 0.75

// Lingva talks to a Lingva Translate instance.
type Lingva struct {
	base
}

func NewLingva(cfg Config) *Lingva {
	cfg.Name = "lingva"
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://lingva.ml"
	}
	return &Lingva{base: newBase(cfg)}
}

type lingvaResponse struct {
	Translation string `json:"translation"`
	Error       string `json:"error"`
}

func (l *Lingva) Translate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/api/v1/%s/%s/%s",
		l.endpoint, req.Source, req.Target, url.PathEscape(req.Text))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lingva: build request: %w", err)
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lingva: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: lingva", domain.ErrRateLimited)
	}

	var body lingvaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("lingva: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Error != "" {
		return nil, fmt.Errorf("lingva: status %d: %s", resp.StatusCode, body.Error)
	}

	return &Result{
		Text:       body.Translation,
		Confidence: lingvaConfidence,
	}, nil
}
