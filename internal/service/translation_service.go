package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/minbar-live/translation-service/internal/domain"
	"github.com/minbar-live/translation-service/internal/provider"
)

// TranslateRequest is an explicit machine-translation call from a client,
// outside any session flow.
type TranslateRequest struct {
	Text      string `json:"text" validate:"required,max=5000"`
	Source    string `json:"source,omitempty" validate:"omitempty,bcp47_language_tag"`
	Target    string `json:"target" validate:"required,bcp47_language_tag"`
	Preferred string `json:"preferred,omitempty" validate:"omitempty,oneof=mymemory libretranslate lingva"`
}

// TranslationService runs ad-hoc requests through the fallback chain,
// detecting the source language when the caller leaves it out.
type TranslationService struct {
	chain    *provider.Chain
	validate *validator.Validate
}

func NewTranslationService(chain *provider.Chain) *TranslationService {
	return &TranslationService{chain: chain, validate: validator.New()}
}

func (s *TranslationService) Translate(ctx context.Context, req TranslateRequest) (*provider.Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	source := domain.Language(req.Source)
	var detected bool
	if source == "" {
		lang, err := s.chain.DetectLanguage(req.Text)
		if err != nil {
			return nil, err
		}
		source, detected = lang, true
	}

	res, err := s.chain.Translate(ctx, provider.Request{
		Text:   req.Text,
		Source: source,
		Target: domain.Language(req.Target),
	}, req.Preferred)
	if err != nil {
		return nil, err
	}
	if detected {
		res.DetectedSource = source
	}
	return res, nil
}

func (s *TranslationService) Usage() []provider.Usage {
	return s.chain.Usage()
}
