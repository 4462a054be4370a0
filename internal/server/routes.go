package server

import (
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"birthdays/internal/email"
	"birthdays/internal/handlers/api"
	"birthdays/internal/jobs"
	"birthdays/internal/middleware"
	"birthdays/internal/sharing"
	"birthdays/internal/submissions"
)

// Services are the application components the routes expose.
type Services struct {
	Users       middleware.UserStore
	DB          api.Pinger
	Links       *sharing.Service
	Security    *middleware.Security
	Submissions *submissions.Service
	Notifier    *email.Notifier
	Scheduler   *jobs.Scheduler // nil when background jobs are disabled
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(svc Services) {
	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(svc.Users, s.Cfg.AuthUserHeader, s.Cfg.AuthEmailHeader, s.Cfg.AuthNameHeader, s.log)
	requireAuth := authMiddleware.RequireAuth

	// Initialize handlers
	healthHandler := api.NewHealthHandler(svc.DB, svc.Scheduler, s.log)
	shareHandler := api.NewShareHandler(svc.Links, svc.Security, svc.Submissions, s.log)
	linkHandler := api.NewSharingLinkHandler(svc.Links, svc.Security, s.Cfg, s.log)
	moderationHandler := api.NewModerationHandler(svc.Submissions, s.log)
	birthdayHandler := api.NewBirthdayHandler(svc.Submissions, s.log)
	preferenceHandler := api.NewPreferenceHandler(svc.Notifier, s.log)

	// Operational endpoints
	s.App.Get("/healthz", healthHandler.Check)
	s.App.Get("/jobz", healthHandler.Jobs)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// One-click unsubscribe from email footers
	s.App.Get("/unsubscribe", preferenceHandler.Unsubscribe)

	apiGroup := s.App.Group("/api")

	// Public share page
	apiGroup.Get("/share/:token", authMiddleware.OptionalAuth, shareHandler.Status)
	apiGroup.Post("/share/:token/submissions", shareHandler.Submit)

	// Sharing links
	apiGroup.Get("/sharing-links", requireAuth, linkHandler.List)
	apiGroup.Get("/sharing-links/quota", requireAuth, linkHandler.Quota)
	apiGroup.Post("/sharing-links", requireAuth, linkHandler.Create)
	apiGroup.Delete("/sharing-links/:id", requireAuth, linkHandler.Revoke)

	// Moderation
	apiGroup.Get("/submissions", requireAuth, moderationHandler.ListPending)
	apiGroup.Post("/submissions/bulk-import", requireAuth, moderationHandler.BulkImport)
	apiGroup.Post("/submissions/bulk-reject", requireAuth, moderationHandler.BulkReject)
	apiGroup.Get("/submissions/:id/duplicates", requireAuth, moderationHandler.Duplicates)
	apiGroup.Post("/submissions/:id/import", requireAuth, moderationHandler.Import)
	apiGroup.Post("/submissions/:id/reject", requireAuth, moderationHandler.Reject)

	// Birthdays
	apiGroup.Get("/birthdays", requireAuth, birthdayHandler.List)
	apiGroup.Post("/birthdays", requireAuth, birthdayHandler.Create)

	// Notification preferences
	apiGroup.Get("/notification-preferences", requireAuth, preferenceHandler.Get)
	apiGroup.Put("/notification-preferences", requireAuth, preferenceHandler.Update)
}
