package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/minbar-live/translation-service/internal/domain"
)

// libreConfidence: the /translate endpoint returns no score, so a
// self-hosted LibreTranslate result carries a flat heuristic.
const libreConfidence = 0.85

// LibreTranslate talks to a LibreTranslate instance. Requires an endpoint
// in config; there is no default public one.
type LibreTranslate struct {
	base
}

func NewLibreTranslate(cfg Config) *LibreTranslate {
	cfg.Name = "libretranslate"
	return &LibreTranslate{base: newBase(cfg)}
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (l *LibreTranslate) Translate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	payload, err := json.Marshal(libreRequest{
		Q:      req.Text,
		Source: string(req.Source),
		Target: string(req.Target),
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("libretranslate: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/translate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("libretranslate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("libretranslate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: libretranslate", domain.ErrRateLimited)
	}

	var body libreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("libretranslate: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Error != "" {
		return nil, fmt.Errorf("libretranslate: status %d: %s", resp.StatusCode, body.Error)
	}

	return &Result{
		Text:       body.TranslatedText,
		Confidence: libreConfidence,
	}, nil
}
