package handlers

import (
	"net/http"

	"workhub/httputil"
	"workhub/logger"
	"workhub/metrics"
	"workhub/middleware"
	"workhub/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every route. Authenticated routes pass the coarse admin
// path guard before the handlers run their own entity checks.
func NewRouter(d Deps, guard *middleware.Guard, log *logger.Logger) http.Handler {
	authHandler := NewAuthHandler(d)
	projectHandler := NewProjectHandler(d)
	teamHandler := NewTeamHandler(d)
	ticketHandler := NewTicketHandler(d)
	adminHandler := NewAdminHandler(d)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.TrustedRealIP(d.Config.TrustedProxies))
	router.Use(middleware.RequestLogger(log))
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())

	// Public routes
	router.Post("/api/auth/login", authHandler.Login)
	router.Post("/api/auth/register", authHandler.Register)
	router.Post("/api/auth/password-reset/request", authHandler.RequestPasswordReset)
	router.Post("/api/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Use(middleware.RequirePasswordChange)
		r.Use(middleware.AdminPaths(d.Config.AdminPathPrefixes))

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Post("/api/auth/password", authHandler.ChangePassword)
		r.Get("/api/me", authHandler.Me)
		r.Get("/api/me/access", authHandler.MyAccess)

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", projectHandler.List)
			r.With(middleware.RequireRole(models.RoleMember)).Post("/", projectHandler.Create)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", projectHandler.Get)
				r.Delete("/", projectHandler.Delete)
				r.Get("/members", projectHandler.ListMembers)
				r.Post("/members", projectHandler.AddMember)
				r.Delete("/members/{userID}", projectHandler.RemoveMember)
			})
		})

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/", teamHandler.List)
			r.Post("/", teamHandler.Create)
			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", teamHandler.Get)
				r.Delete("/", teamHandler.Delete)
				r.Get("/members", teamHandler.ListMembers)
				r.Post("/members", teamHandler.AddMember)
				r.Delete("/members/{userID}", teamHandler.RemoveMember)
			})
		})

		r.Route("/api/tickets", func(r chi.Router) {
			r.Get("/", ticketHandler.List)
			r.Get("/{ticketID}", ticketHandler.Get)

			// Guests read, members write
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleMember))
				r.Post("/", ticketHandler.Create)
				r.Patch("/{ticketID}", ticketHandler.Update)
				r.Delete("/{ticketID}", ticketHandler.Delete)
			})
		})

		// Admin only; AdminPaths already enforces the role for this prefix.
		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/users", adminHandler.ListUsers)
			r.Patch("/users/{userID}", adminHandler.UpdateUser)
			r.Delete("/users/{userID}", adminHandler.DeleteUser)
			r.Get("/audit", adminHandler.AuditTrail)
		})
	})

	return router
}
