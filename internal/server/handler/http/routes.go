package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/middleware"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Auth    *AuthHandler
	Boards  *BoardHandler
	Analyze *AnalyzeHandler
}

// NewRouter constructs and returns an HTTP handler that serves
// the casebook API under /api.
//
// Parameters:
//
//	h             - endpoint handlers
//	authenticator - validates bearer tokens for the protected group
//	corsOrigins   - browser origins allowed to call the API
//	logger        - structured logger for request logging middleware
//
// Routes:
//
//	POST   /api/register                             → Auth.Register
//	POST   /api/login                                → Auth.Login
//	POST   /api/logout                               → Auth.Logout
//	GET    /api/me                                   → Auth.Me
//	GET    /api/boards                               → Boards.List
//	POST   /api/boards                               → Boards.Create
//	GET    /api/boards/public                        → Boards.SearchPublic
//	GET    /api/boards/{id}                          → Boards.Get
//	DELETE /api/boards/{id}                          → Boards.Delete
//	PUT    /api/boards/{id}/visibility               → Boards.SetVisibility
//	POST   /api/boards/{id}/members                  → Boards.AddMember
//	DELETE /api/boards/{id}/members/{email}          → Boards.RemoveMember
//	POST   /api/boards/{id}/notes                    → Boards.CreateNote
//	DELETE /api/boards/{id}/notes/{noteID}           → Boards.DeleteNote
//	PUT    /api/boards/{id}/notes/{noteID}/position  → Boards.SetNotePosition
//	POST   /api/analyze                              → Analyze.Analyze
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. WithRequestLogging(logger)
//  3. CORS for corsOrigins
//  4. AllowContentType("application/json") for requests with a body
//  5. BearerAuth on everything except register and login
func NewRouter(
	h Handlers,
	authenticator middleware.Authenticator,
	corsOrigins []string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	// Bodiless requests pass; anything with a body must be JSON.
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(authenticator, logger))

			r.Post("/logout", h.Auth.Logout)
			r.Get("/me", h.Auth.Me)

			r.Route("/boards", func(r chi.Router) {
				r.Get("/", h.Boards.List)
				r.Post("/", h.Boards.Create)
				r.Get("/public", h.Boards.SearchPublic)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Boards.Get)
					r.Delete("/", h.Boards.Delete)
					r.Put("/visibility", h.Boards.SetVisibility)
					r.Post("/members", h.Boards.AddMember)
					r.Delete("/members/{email}", h.Boards.RemoveMember)
					r.Post("/notes", h.Boards.CreateNote)
					r.Delete("/notes/{noteID}", h.Boards.DeleteNote)
					r.Put("/notes/{noteID}/position", h.Boards.SetNotePosition)
				})
			})

			r.Post("/analyze", h.Analyze.Analyze)
		})
	})

	return r
}
