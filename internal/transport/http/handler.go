package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/minbar-live/translation-service/internal/domain"
	"github.com/minbar-live/translation-service/internal/postgres"
	"github.com/minbar-live/translation-service/internal/service"
	"github.com/minbar-live/translation-service/internal/session"
	httpmw "github.com/minbar-live/translation-service/internal/transport/http/middleware"
)

// HistoryLister is the read side of the session history store.
type HistoryLister interface {
	ListByMosque(ctx context.Context, mosqueID string, limit int) ([]domain.SessionSummary, error)
}

type Handler struct {
	reg     *session.Registry
	prefSvc *service.PreferenceService
	trSvc   *service.TranslationService
	history HistoryLister
}

func NewHandler(reg *session.Registry, prefSvc *service.PreferenceService, trSvc *service.TranslationService, history HistoryLister) *Handler {
	return &Handler{
		reg:     reg,
		prefSvc: prefSvc,
		trSvc:   trSvc,
		history: history,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrUtteranceNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateBroadcast):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAllProvidersFailed):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("handler."+op, slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func mapSession(s domain.Session) SessionItem {
	return SessionItem{
		ID:             s.ID,
		MosqueID:       s.MosqueID,
		SourceLanguage: string(s.SourceLanguage),
		Languages:      lo.Map(s.Languages, func(l domain.Language, _ int) string { return string(l) }),
		State:          string(s.State),
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
	}
}

// POST /sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	langs := lo.Map(req.Languages, func(s string, _ int) domain.Language { return domain.Language(s) })
	s, err := h.reg.Create(r.Context(), req.MosqueID, "", domain.Language(req.SourceLanguage), langs)
	if err != nil {
		writeErr(w, "StartSession", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapSession(s))
}

// POST /sessions/{id}/end
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reg.End(r.Context(), id, domain.ReasonEnded); err != nil {
		writeErr(w, "EndSession", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// GET /sessions?mosque_id=
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	items := h.reg.ListActive(r.URL.Query().Get("mosque_id"))
	resp := SessionsListResponse{Items: lo.Map(items, func(s domain.Session, _ int) SessionItem { return mapSession(s) })}
	writeJSON(w, http.StatusOK, resp)
}

// GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, "GetSession", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(s))
}

// GET /sessions/{id}/translations?language=&limit=
func (h *Handler) GetRecentTranslations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	lang := domain.Language(r.URL.Query().Get("language"))

	items, err := h.reg.Recent(chi.URLParam(r, "id"), lang, limit)
	if err != nil {
		writeErr(w, "GetRecentTranslations", err)
		return
	}
	writeJSON(w, http.StatusOK, RecentTranslationsResponse{Items: items})
}

// GET /preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	if userID == 0 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}

	p, err := h.prefSvc.Preference(r.Context(), userID)
	if err != nil {
		if errors.Is(err, postgres.ErrPreferenceNotFound) {
			p = domain.DefaultPreference(userID, "")
		} else {
			writeErr(w, "GetPreferences", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, mapPreference(p))
}

// PUT /preferences
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	if userID == 0 {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}

	var req PutPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	p, err := h.prefSvc.Put(r.Context(), service.PreferenceUpdate{
		UserID:            userID,
		PrimaryLanguage:   req.PrimaryLanguage,
		SecondaryLanguage: req.SecondaryLanguage,
		ShowDualSubtitles: req.ShowDualSubtitles,
		FontScale:         req.FontScale,
		ColorScheme:       req.ColorScheme,
	})
	if err != nil {
		writeErr(w, "PutPreferences", err)
		return
	}

	writeJSON(w, http.StatusOK, mapPreference(p))
}

func mapPreference(p domain.Preference) PreferenceItem {
	return PreferenceItem{
		UserID:            p.UserID,
		PrimaryLanguage:   string(p.PrimaryLanguage),
		SecondaryLanguage: string(p.SecondaryLanguage),
		ShowDualSubtitles: p.ShowDualSubtitles,
		FontScale:         p.FontScale,
		ColorScheme:       p.ColorScheme,
	}
}

// POST /translate
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	var req service.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	res, err := h.trSvc.Translate(r.Context(), req)
	if err != nil {
		writeErr(w, "Translate", err)
		return
	}

	writeJSON(w, http.StatusOK, TranslateResponse{
		Text:           res.Text,
		Confidence:     res.Confidence,
		Provider:       res.Provider,
		DetectedSource: string(res.DetectedSource),
	})
}

// GET /providers/usage
func (h *Handler) ProviderUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProviderUsageResponse{Items: h.trSvc.Usage()})
}

// GET /mosques/{id}/history?limit=
func (h *Handler) MosqueHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	items, err := h.history.ListByMosque(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErr(w, "MosqueHistory", err)
		return
	}

	resp := HistoryResponse{Items: make([]HistoryItem, 0, len(items))}
	for _, sum := range items {
		resp.Items = append(resp.Items, HistoryItem{
			SessionID:        sum.SessionID,
			MosqueID:         sum.MosqueID,
			StartedAt:        sum.StartedAt,
			EndedAt:          sum.EndedAt,
			DurationSeconds:  int64(sum.EndedAt.Sub(sum.StartedAt).Seconds()),
			TranslationCount: sum.TranslationCount,
			Languages:        lo.Map(sum.Languages, func(l domain.Language, _ int) string { return string(l) }),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
