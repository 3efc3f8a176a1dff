package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/riftbridge/custom-match-core/internal/api/handlers"
	"github.com/riftbridge/custom-match-core/internal/api/middleware"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/repository"
	"github.com/riftbridge/custom-match-core/internal/service"
)

func NewRouter(services *service.Services, hub *gateway.Hub, repos *repository.Repositories) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	playerHandler := handlers.NewPlayerHandler(services.Player, repos.Match)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/players", func(r chi.Router) {
			r.Get("/{summonerName}", playerHandler.GetProfile)
		})
		r.Route("/matches", func(r chi.Router) {
			r.Get("/active", playerHandler.GetActiveMatches)
			r.Get("/{id}", playerHandler.GetMatch)
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
