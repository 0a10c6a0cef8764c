package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/minbar-live/translation-service/internal/domain"
	"github.com/minbar-live/translation-service/internal/provider"
	"github.com/minbar-live/translation-service/internal/session"
)

const fallbackCallTimeout = 15 * time.Second

// FallbackScheduler covers languages no human translator reached in time.
// After each utterance it waits out a grace window, then machine-translates
// whatever (utterance, language) pairs are still empty. A human submission
// during or after the window always takes precedence.
type FallbackScheduler struct {
	reg       *session.Registry
	chain     *provider.Chain
	grace     time.Duration
	preferred string
}

// NewFallbackScheduler with grace <= 0 disables the fallback path entirely.
func NewFallbackScheduler(reg *session.Registry, chain *provider.Chain, grace time.Duration, preferred string) *FallbackScheduler {
	return &FallbackScheduler{reg: reg, chain: chain, grace: grace, preferred: preferred}
}

func (s *FallbackScheduler) Enabled() bool { return s.grace > 0 }

// UtteranceAppended is wired as the registry's utterance hook.
func (s *FallbackScheduler) UtteranceAppended(sessionID string, u domain.Utterance) {
	if !s.Enabled() {
		return
	}
	time.AfterFunc(s.grace, func() { s.fill(sessionID, u) })
}

func (s *FallbackScheduler) fill(sessionID string, u domain.Utterance) {
	info, err := s.reg.Get(sessionID)
	if err != nil {
		return // session ended in the meantime
	}

	for _, lang := range info.Languages {
		if lang == info.SourceLanguage {
			continue
		}
		if s.reg.HasTranslation(sessionID, u.ID, lang) {
			continue // a human got there first
		}

		ctx, cancel := context.WithTimeout(context.Background(), fallbackCallTimeout)
		res, err := s.chain.Translate(ctx, provider.Request{
			Text:   u.Text,
			Source: info.SourceLanguage,
			Target: lang,
		}, s.preferred)
		cancel()
		if err != nil {
			slog.Warn("machine fallback failed",
				"session", sessionID, "utterance", u.ID, "lang", lang, "err", err)
			continue
		}

		submitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err = s.reg.SubmitTranslation(submitCtx, sessionID, session.TranslationSubmission{
			UtteranceID: u.ID,
			Language:    lang,
			Text:        res.Text,
			Confidence:  res.Confidence,
			Source:      domain.SourceMachine,
		})
		cancel()
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			slog.Debug("machine fallback submit rejected",
				"session", sessionID, "utterance", u.ID, "lang", lang, "err", err)
		}
	}
}
