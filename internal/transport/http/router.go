package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"

	httpmw "github.com/minbar-live/translation-service/internal/transport/http/middleware"
	"github.com/minbar-live/translation-service/internal/transport/ws"
)

func NewRouter(h *Handler, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint authenticates via query params on upgrade
	r.Get("/ws/sessions/{id}", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware)
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", h.StartSession)
			sr.Get("/", h.ListSessions)

			sr.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetSession)
				rr.Post("/end", h.EndSession)
				rr.Get("/translations", h.GetRecentTranslations)
			})
		})

		pr.Route("/preferences", func(pp chi.Router) {
			pp.Get("/", h.GetPreferences)
			pp.Put("/", h.PutPreferences)
		})

		pr.Post("/translate", h.Translate)
		pr.Get("/providers/usage", h.ProviderUsage)
		pr.Get("/mosques/{id}/history", h.MosqueHistory)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
