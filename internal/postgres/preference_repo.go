package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minbar-live/translation-service/internal/domain"
)

var ErrPreferenceNotFound = errors.New("preference not found")

type PreferenceRepository struct {
	db *pgxpool.Pool
}

func NewPreferenceRepository(db *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID int64) (*domain.Preference, error) {
	query := `
		SELECT user_id, primary_language, secondary_language,
		       show_dual_subtitles, font_scale, color_scheme
		FROM user_preferences WHERE user_id=$1`

	var p domain.Preference
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.PrimaryLanguage, &p.SecondaryLanguage,
		&p.ShowDualSubtitles, &p.FontScale, &p.ColorScheme)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, p *domain.Preference) error {
	query := `
		INSERT INTO user_preferences
			(user_id, primary_language, secondary_language,
			 show_dual_subtitles, font_scale, color_scheme)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			primary_language    = EXCLUDED.primary_language,
			secondary_language  = EXCLUDED.secondary_language,
			show_dual_subtitles = EXCLUDED.show_dual_subtitles,
			font_scale          = EXCLUDED.font_scale,
			color_scheme        = EXCLUDED.color_scheme`

	_, err := r.db.Exec(ctx, query,
		p.UserID, p.PrimaryLanguage, p.SecondaryLanguage,
		p.ShowDualSubtitles, p.FontScale, p.ColorScheme)
	return err
}
