package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/koc-community/tournament-system/handlers"
	"github.com/koc-community/tournament-system/middleware"
)

type Handlers struct {
	Brawlers    *handlers.BrawlerHandler
	Teams       *handlers.TeamHandler
	Tournaments *handlers.TournamentHandler
	Matches     *handlers.MatchHandler
	Collectors  *handlers.CollectorHandler
	StatusBoard *handlers.StatusBoardHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(h Handlers, jwtSecret string) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	// Все маршруты закрыты сервисными токенами: API дергает только наш
	// шлюз и панель организаторов.
	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(middleware.RoleGateway, middleware.RoleOrganizer))

		r.Route("/brawlers", func(r chi.Router) {
			r.Post("/resolve", h.Brawlers.Resolve)
			r.Get("/", h.Brawlers.Get)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", h.Teams.Create)
			r.Get("/me", h.Teams.Mine)
			r.Get("/by-name/{name}", h.Teams.ByName)
			r.Post("/invites", h.Teams.CreateInvite)
			r.Post("/invites/accept", h.Teams.AcceptInvite)
			r.Post("/leave", h.Teams.Leave)
			r.Post("/disband", h.Teams.Disband)
			r.Post("/logo", h.Teams.UploadLogo)
		})

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.Tournaments.List)
			r.Get("/active-signups", h.Tournaments.ActiveSignups)
			r.Get("/{tournamentID}", h.Tournaments.Get)
			r.Get("/{tournamentID}/bracket", h.Tournaments.Bracket)
			r.Post("/{tournamentID}/signup", h.Tournaments.SignUp)
			r.Post("/{tournamentID}/withdraw", h.Tournaments.Withdraw)

			r.Route("/{tournamentID}/matches", func(r chi.Router) {
				r.Get("/next", h.Matches.Next)
				r.Get("/{matchID}", h.Matches.Get)
				r.Get("/{matchID}/games/next", h.Matches.NextGame)
				r.Post("/{matchID}/score", h.Matches.RecordScore)
				r.Post("/{matchID}/finish", h.Matches.FinishGame)
				r.Put("/{matchID}/message", h.Matches.SetMessage)
			})
		})

		r.Route("/collectors", func(r chi.Router) {
			r.Post("/", h.Collectors.Open)
			r.Get("/{messageID}", h.Collectors.Get)
			r.Post("/{messageID}/touch", h.Collectors.Touch)
			r.Delete("/{messageID}", h.Collectors.Close)
		})

		r.Get("/status/servers", h.StatusBoard.Servers)
	})

	// Управление жизненным циклом - только организаторы.
	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(middleware.RoleOrganizer))

		r.Post("/tournaments", h.Tournaments.Create)
		r.Put("/tournaments/{tournamentID}/status", h.Tournaments.ChangeStatus)
		r.Post("/tournaments/{tournamentID}/start", h.Tournaments.Start)
		r.Post("/tournaments/{tournamentID}/archive", h.Tournaments.Archive)
		r.Put("/tournaments/{tournamentID}/messages", h.Tournaments.SetMessages)
	})

	// Websocket авторизуется токеном в query внутри Authenticate.
	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeTournament)
		r.Get("/ws/status", h.WebSocket.ServeStatusBoard)
	})

	return router
}
