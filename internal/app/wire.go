package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/handler"
	adminhandler "github.com/schoolerp/gamification/internal/handler/admin"
	"github.com/schoolerp/gamification/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Service     *service.GamificationService
	JWTMgr      *auth.JWTManager
	ServiceAuth *auth.ServiceAuthManager // nil disables /internal routes
	Idempotency *guard.IdempotencyGuard
	RateLimiter *guard.RateLimiter
	CORSOrigins string
	Logger      *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	validate := handler.NewValidator()

	// Handlers
	gamification := handler.NewGamificationHandler(deps.Service, deps.Idempotency, deps.RateLimiter, validate, logger)
	gamificationAdmin := adminhandler.NewGamificationAdminHandler(deps.Service)

	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Service))

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTMgr))

		r.Route("/gamification", func(r chi.Router) {
			r.Post("/actions/complete", gamification.CompleteAction)
			r.Get("/me", gamification.GetSummary)
			r.Get("/me/activity", gamification.ListActivity)
			r.Get("/me/achievements", gamification.ListAchievements)
			r.Get("/me/challenges", gamification.ListChallenges)
			r.Get("/leaderboard", gamification.Leaderboard)
			r.Get("/catalog", gamification.Catalog)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.AdminRoles()...))
			r.Get("/users/{userID}/gamification", gamificationAdmin.GetUser)
		})
	})

	// Module-to-module routes
	if deps.ServiceAuth != nil {
		track := handler.NewTrackHandler(deps.Service, validate, logger)
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticateService(deps.ServiceAuth, auth.ScopeTrackActions))
			r.Post("/internal/actions/track", track.Track)
		})
	}

	return r
}
