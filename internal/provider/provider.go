// Package provider wraps external machine-translation backends behind a
// uniform adapter interface and a preference-ordered fallback chain.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abadojack/whatlanggo"

	"github.com/minbar-live/translation-service/internal/domain"
)

type Request struct {
	Text   string
	Source domain.Language
	Target domain.Language
}

type Result struct {
	Text           string
	Confidence     float64
	Provider       string
	DetectedSource domain.Language
}

// Adapter is one machine-translation backend. CheckRateLimit fails fast
// before any network call; CommitUsage is called by the chain only after a
// result passed validation.
type Adapter interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Result, error)
	DetectLanguage(text string) (domain.Language, error)
	Available() bool
	CheckRateLimit(chars int) error
	CommitUsage(chars int)
	Usage() Usage
}

// Config is one provider block from the yaml config.
type Config struct {
	Name           string        `yaml:"name"`
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"apiKey"`
	Timeout        time.Duration `yaml:"timeout"`
	CharsPerWindow int64         `yaml:"charsPerWindow"`
	Window         time.Duration `yaml:"window"`
	CostPerChar    float64       `yaml:"costPerChar"`
}

func (c *Config) fill() {
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
}

// base carries the pieces every adapter shares.
type base struct {
	name     string
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	usage    *usageTracker
}

func newBase(cfg Config) base {
	cfg.fill()
	return base{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		client:   &http.Client{Timeout: cfg.Timeout},
		usage:    newUsageTracker(cfg.Name, cfg.CharsPerWindow, cfg.Window, cfg.CostPerChar),
	}
}

func (b *base) Name() string    { return b.name }
func (b *base) Available() bool { return b.endpoint != "" }

func (b *base) CheckRateLimit(chars int) error { return b.usage.check(chars) }
func (b *base) CommitUsage(chars int)          { b.usage.commit(chars) }

func (b *base) Usage() Usage { return b.usage.snapshot() }

// DetectLanguage runs locally, no provider round-trip needed for it.
func (b *base) DetectLanguage(text string) (domain.Language, error) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", fmt.Errorf("%w: language detection unreliable", domain.ErrValidation)
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", fmt.Errorf("%w: no ISO 639-1 code for detected language", domain.ErrValidation)
	}
	return domain.Language(code), nil
}
