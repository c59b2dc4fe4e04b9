package http

import (
	"net/http"

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/gateway/ws"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Handler struct {
	Relay     *service.RelayService
	Records   *service.CallRecordService
	Hub       *ws.Hub
	Auth      *Authenticator
	Origins   []string
	StaticDir string
}

func NewHandler(relay *service.RelayService, records *service.CallRecordService, hub *ws.Hub, auth *Authenticator, origins []string) *Handler {
	return &Handler{
		Relay:   relay,
		Records: records,
		Hub:     hub,
		Auth:    auth,
		Origins: origins,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   h.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws/calls/{userID}", h.ServeWS)

	r.Route("/api/calls", func(r chi.Router) {
		r.Use(h.Auth.Require)
		r.Post("/initiate", h.InitiateCall)
		r.Get("/history", h.CallHistory)
		r.Post("/{callID}/answer", h.AnswerCall)
		r.Post("/{callID}/reject", h.RejectCall)
		r.Post("/{callID}/end", h.EndCall)
	})

	if h.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}
