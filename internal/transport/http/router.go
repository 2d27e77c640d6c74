package http

import (
	"context"
	"net/http"
	"time"

	"brainbrawler-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck checks one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

// NewRouter exposes the coordinator over REST and WebSocket.
func NewRouter(coord *app.Coordinator, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	api := &matchHandlers{coord: coord}
	ws := NewWSHandler(coord)

	r.Get("/healthz", handleHealth(checks))
	r.Get("/ws", ws.ServeWS)

	r.Route("/api/matches", func(r chi.Router) {
		r.Post("/", api.create)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", api.get)
			r.Post("/join", api.join)
			r.Post("/start", api.start)
			r.Post("/next", api.next)
			r.Post("/answers", api.answer)
			r.Delete("/players/{playerID}", api.removePlayer)
		})
	})
	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		results := map[string]string{"coordinator": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	}
}
