package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/minbar-live/translation-service/internal/domain"
)

// MyMemory talks to the MyMemory translated.net REST API.
type MyMemory struct {
	base
}

func NewMyMemory(cfg Config) *MyMemory {
	cfg.Name = "mymemory"
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.mymemory.translated.net"
	}
	return &MyMemory{base: newBase(cfg)}
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	ResponseStatus int `json:"responseStatus"`
}

func (m *MyMemory) Translate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("langpair", fmt.Sprintf("%s|%s", req.Source, req.Target))
	if m.apiKey != "" {
		q.Set("key", m.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/get?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mymemory: build request: %w", err)
	}
	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mymemory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: mymemory", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mymemory: unexpected status %d", resp.StatusCode)
	}

	var body myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("mymemory: decode response: %w", err)
	}
	if body.ResponseStatus != 0 && body.ResponseStatus != http.StatusOK {
		return nil, fmt.Errorf("mymemory: api status %d", body.ResponseStatus)
	}

	conf := body.ResponseData.Match
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}

	return &Result{
		Text:       body.ResponseData.TranslatedText,
		Confidence: conf,
	}, nil
}
