package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/oarlock/gauntlet-system/handlers"
)

func SetupRoutes(
	router *chi.Mux,
	allowedOrigins []string,
	gauntletHandler *handlers.GauntletHandler,
	matchHandler *handlers.MatchHandler,
	ladderHandler *handlers.LadderHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
	}))

	router.Route("/gauntlets", func(r chi.Router) {
		r.Post("/", gauntletHandler.CreateGauntletHandler)

		r.Route("/{gauntletID}", func(r chi.Router) {
			r.Get("/", gauntletHandler.GetGauntletHandler)
			r.Delete("/", gauntletHandler.DeleteGauntletHandler)
			r.Patch("/close", gauntletHandler.CloseGauntletHandler)

			r.Post("/lineups", gauntletHandler.AddLineupHandler)

			r.Post("/matches", matchHandler.RecordMatchHandler)
			r.Get("/matches", matchHandler.ListMatchesHandler)

			r.Get("/ladder", ladderHandler.GetLadderHandler)
			r.Get("/progressions", ladderHandler.GetProgressionHistoryHandler)
			r.Post("/adjustments", ladderHandler.AdjustPositionHandler)
		})
	})

	router.Delete("/lineups/{lineupID}", gauntletHandler.DeleteLineupHandler)
	router.Delete("/matches/{matchID}", matchHandler.DeleteMatchHandler)

	router.Get("/ws/gauntlets/{gauntletID}", webSocketHandler.ServeWs)
}
