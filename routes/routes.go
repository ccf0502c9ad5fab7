package routes

import (
	"github.com/Dosada05/knockout-system/handlers"
	"github.com/Dosada05/knockout-system/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	matchHandler *handlers.MatchHandler,
	entryHandler *handlers.EntryHandler,
	dashboardHandler *handlers.DashboardHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Get("/dashboard/stats", dashboardHandler.GetStats)

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичное чтение
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}", tournamentHandler.Get)
		r.Get("/{tournamentID}/bracket", tournamentHandler.GetBracket)
		r.Get("/{tournamentID}/players", tournamentHandler.ListPlayers)

		// Операции организатора
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.RequireOrganizer)

			r.Post("/", tournamentHandler.Create)
			r.Put("/{tournamentID}", tournamentHandler.Update)
			r.Patch("/{tournamentID}/status", tournamentHandler.UpdateStatus)
			r.Delete("/{tournamentID}", tournamentHandler.Delete)
			r.Post("/{tournamentID}/banner", tournamentHandler.UploadBanner)

			r.Post("/{tournamentID}/players", tournamentHandler.RegisterPlayer)
			r.Post("/{tournamentID}/start", tournamentHandler.Start)

			// Движок сетки
			r.Post("/{tournamentID}/matches/{matchID}/result", matchHandler.RecordResult)
			r.Patch("/{tournamentID}/matches/{matchID}/score", matchHandler.UpdateScore)
			r.Post("/{tournamentID}/undo", matchHandler.Undo)

			r.Post("/{tournamentID}/late-entries", entryHandler.LateEntry)
			r.Post("/{tournamentID}/players/{playerID}/rebuy", entryHandler.Rebuy)
		})
	})
}
