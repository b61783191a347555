package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(h.metrics),
	)

	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/execute", h.Execute)
		r.Get("/status/{id}", h.Status)
		r.Post("/step/update", h.StepUpdate)
		r.Get("/history/{id}", h.History)
		r.Get("/steps", h.Steps)
	})
}

// Router создаёт chi.Router с маршрутами API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}
