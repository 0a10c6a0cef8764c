package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minbar-live/translation-service/internal/domain"
)

type fakeAdapter struct {
	name      string
	available bool
	rateErr   error
	res       *Result
	err       error

	calls     int
	committed int64
}

func (a *fakeAdapter) Name() string    { return a.name }
func (a *fakeAdapter) Available() bool { return a.available }

func (a *fakeAdapter) CheckRateLimit(chars int) error { return a.rateErr }
func (a *fakeAdapter) CommitUsage(chars int)          { a.committed += int64(chars) }

func (a *fakeAdapter) Usage() Usage {
	return Usage{Provider: a.name, CharactersProcessed: a.committed}
}

func (a *fakeAdapter) DetectLanguage(string) (domain.Language, error) { return "ar", nil }
func (a *fakeAdapter) Translate(_ context.Context, _ Request) (*Result, error) {
	a.calls++
	return a.res, a.err
}

func req() Request {
	return Request{Text: "بسم الله", Source: "ar", Target: "de"}
}

func TestChainFallbackOnInvalidResult(t *testing.T) {
	// a returns the source text unchanged, which fails validation
	a := &fakeAdapter{name: "a", available: true, res: &Result{Text: "بسم الله", Confidence: 0.9}}
	b := &fakeAdapter{name: "b", available: true, res: &Result{Text: "Im Namen Allahs", Confidence: 0.8}}
	chain := NewChain(a, b)

	res, err := chain.Translate(context.Background(), req(), "")
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, "Im Namen Allahs", res.Text)

	// usage committed only for the winner
	assert.Zero(t, a.committed)
	assert.Equal(t, int64(len(req().Text)), b.committed)
}

func TestChainSkipsUnavailableAndRateLimited(t *testing.T) {
	down := &fakeAdapter{name: "down", available: false}
	limited := &fakeAdapter{name: "limited", available: true, rateErr: domain.ErrRateLimited}
	ok := &fakeAdapter{name: "ok", available: true, res: &Result{Text: "Hallo", Confidence: 0.7}}
	chain := NewChain(down, limited, ok)

	res, err := chain.Translate(context.Background(), req(), "")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Provider)
	assert.Zero(t, down.calls)
	assert.Zero(t, limited.calls, "rate-limited adapter must be skipped before the network call")
}

func TestChainAllProvidersFailed(t *testing.T) {
	a := &fakeAdapter{name: "a", available: true, err: errors.New("boom")}
	b := &fakeAdapter{name: "b", available: true, res: &Result{Text: "", Confidence: 0.5}}
	chain := NewChain(a, b)

	_, err := chain.Translate(context.Background(), req(), "")
	require.ErrorIs(t, err, domain.ErrAllProvidersFailed)
}

func TestChainNoProviders(t *testing.T) {
	_, err := NewChain().Translate(context.Background(), req(), "")
	require.ErrorIs(t, err, domain.ErrAllProvidersFailed)
}

func TestChainPreferredGoesFirst(t *testing.T) {
	a := &fakeAdapter{name: "a", available: true, res: &Result{Text: "von A", Confidence: 0.9}}
	b := &fakeAdapter{name: "b", available: true, res: &Result{Text: "von B", Confidence: 0.9}}
	chain := NewChain(a, b)

	res, err := chain.Translate(context.Background(), req(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Zero(t, a.calls)
}

func TestChainValidatesRequest(t *testing.T) {
	chain := NewChain(&fakeAdapter{name: "a", available: true})

	_, err := chain.Translate(context.Background(), Request{Text: "  ", Target: "de"}, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = chain.Translate(context.Background(), Request{Text: "x"}, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidateResult(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		res  *Result
		ok   bool
	}{
		{"valid", req(), &Result{Text: "Hallo", Confidence: 0.5}, true},
		{"empty", req(), &Result{Text: "   ", Confidence: 0.5}, false},
		{"identical to source", req(), &Result{Text: "بسم الله", Confidence: 0.5}, false},
		{"identical but same language pair", Request{Text: "x", Source: "de", Target: "de"}, &Result{Text: "x", Confidence: 0.5}, true},
		{"confidence too high", req(), &Result{Text: "Hallo", Confidence: 1.2}, false},
		{"confidence negative", req(), &Result{Text: "Hallo", Confidence: -0.1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResult(tc.req, tc.res)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestChainUsageSnapshot(t *testing.T) {
	a := &fakeAdapter{name: "a", available: true, committed: 42}
	b := &fakeAdapter{name: "b", available: true}
	chain := NewChain(a, b)

	usage := chain.Usage()
	require.Len(t, usage, 2)
	assert.Equal(t, int64(42), usage[0].CharactersProcessed)
	assert.Equal(t, "b", usage[1].Provider)
}
