package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/minbar-live/translation-service/internal/domain"
	"github.com/minbar-live/translation-service/internal/postgres"
)

// PreferenceStore is the durable side of preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID int64) (*domain.Preference, error)
	Upsert(ctx context.Context, p *domain.Preference) error
}

// PreferenceRefresher gets told about updates so live sessions re-format
// subsequent fanout for that user immediately.
type PreferenceRefresher interface {
	RefreshPreference(pref domain.Preference)
}

// PreferenceUpdate is the validated mutation payload.
type PreferenceUpdate struct {
	UserID            int64  `validate:"required,gt=0"`
	PrimaryLanguage   string `validate:"required,bcp47_language_tag"`
	SecondaryLanguage string `validate:"omitempty,bcp47_language_tag,nefield=PrimaryLanguage"`
	ShowDualSubtitles bool
	FontScale         string `validate:"omitempty,oneof=small medium large"`
	ColorScheme       string `validate:"omitempty,oneof=light dark sepia"`
}

// PreferenceService fronts the store with a read-through cache; the fanout
// path reads through here and must never block on the database per event.
type PreferenceService struct {
	repo      PreferenceStore
	refresher PreferenceRefresher
	validate  *validator.Validate

	mu    sync.RWMutex
	cache map[int64]domain.Preference
}

func NewPreferenceService(repo PreferenceStore, refresher PreferenceRefresher) *PreferenceService {
	return &PreferenceService{
		repo:      repo,
		refresher: refresher,
		validate:  validator.New(),
		cache:     make(map[int64]domain.Preference),
	}
}

// Preference implements session.PreferenceSource.
func (s *PreferenceService) Preference(ctx context.Context, userID int64) (domain.Preference, error) {
	s.mu.RLock()
	if p, ok := s.cache[userID]; ok {
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrPreferenceNotFound) {
			return domain.Preference{}, err
		}
		return domain.Preference{}, fmt.Errorf("preference lookup: %w", err)
	}

	s.mu.Lock()
	s.cache[userID] = *p
	s.mu.Unlock()
	return *p, nil
}

func (s *PreferenceService) Put(ctx context.Context, upd PreferenceUpdate) (domain.Preference, error) {
	if err := s.validate.Struct(upd); err != nil {
		return domain.Preference{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	p := domain.Preference{
		UserID:            upd.UserID,
		PrimaryLanguage:   domain.Language(upd.PrimaryLanguage),
		SecondaryLanguage: domain.Language(upd.SecondaryLanguage),
		ShowDualSubtitles: upd.ShowDualSubtitles,
		FontScale:         upd.FontScale,
		ColorScheme:       upd.ColorScheme,
	}
	if p.FontScale == "" {
		p.FontScale = "medium"
	}
	if p.ColorScheme == "" {
		p.ColorScheme = "light"
	}

	if err := s.repo.Upsert(ctx, &p); err != nil {
		return domain.Preference{}, fmt.Errorf("preference upsert: %w", err)
	}

	s.mu.Lock()
	s.cache[p.UserID] = p
	s.mu.Unlock()

	if s.refresher != nil {
		s.refresher.RefreshPreference(p)
	}
	return p, nil
}
