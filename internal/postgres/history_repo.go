package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/minbar-live/translation-service/internal/domain"
)

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) RecordSummary(ctx context.Context, sum domain.SessionSummary) error {
	query := `
		INSERT INTO session_history
			(session_id, mosque_id, started_at, ended_at, translation_count, languages)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING`

	langs := lo.Map(sum.Languages, func(l domain.Language, _ int) string { return string(l) })
	_, err := r.db.Exec(ctx, query,
		sum.SessionID, sum.MosqueID, sum.StartedAt, sum.EndedAt,
		sum.TranslationCount, langs)
	return err
}

func (r *HistoryRepository) ListByMosque(ctx context.Context, mosqueID string, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT session_id, mosque_id, started_at, ended_at, translation_count, languages
		FROM session_history
		WHERE mosque_id=$1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, mosqueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var langs []string
		if err := rows.Scan(&sum.SessionID, &sum.MosqueID, &sum.StartedAt,
			&sum.EndedAt, &sum.TranslationCount, &langs); err != nil {
			return nil, err
		}
		sum.Languages = lo.Map(langs, func(s string, _ int) domain.Language { return domain.Language(s) })
		out = append(out, sum)
	}
	return out, rows.Err()
}
