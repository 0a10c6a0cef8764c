package http

import (
	"time"

	"github.com/minbar-live/translation-service/internal/provider"
	"github.com/minbar-live/translation-service/internal/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type StartSessionRequest struct {
	MosqueID       string   `json:"mosque_id"`
	SourceLanguage string   `json:"source_language"`
	Languages      []string `json:"languages"`
}

type SessionItem struct {
	ID             string     `json:"id"`
	MosqueID       string     `json:"mosque_id"`
	SourceLanguage string     `json:"source_language"`
	Languages      []string   `json:"languages"`
	State          string     `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type SessionsListResponse struct {
	Items []SessionItem `json:"items"`
}

type RecentTranslationsResponse struct {
	Items []session.Update `json:"items"`
}

type PreferenceItem struct {
	UserID            int64  `json:"user_id"`
	PrimaryLanguage   string `json:"primary_language"`
	SecondaryLanguage string `json:"secondary_language,omitempty"`
	ShowDualSubtitles bool   `json:"show_dual_subtitles"`
	FontScale         string `json:"font_scale"`
	ColorScheme       string `json:"color_scheme"`
}

type PutPreferenceRequest struct {
	PrimaryLanguage   string `json:"primary_language"`
	SecondaryLanguage string `json:"secondary_language,omitempty"`
	ShowDualSubtitles bool   `json:"show_dual_subtitles"`
	FontScale         string `json:"font_scale,omitempty"`
	ColorScheme       string `json:"color_scheme,omitempty"`
}

type TranslateResponse struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	Provider       string  `json:"provider"`
	DetectedSource string  `json:"detected_source,omitempty"`
}

type ProviderUsageResponse struct {
	Items []provider.Usage `json:"items"`
}

type HistoryItem struct {
	SessionID        string    `json:"session_id"`
	MosqueID         string    `json:"mosque_id"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationSeconds  int64     `json:"duration_seconds"`
	TranslationCount int64     `json:"translation_count"`
	Languages        []string  `json:"languages"`
}

type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}
