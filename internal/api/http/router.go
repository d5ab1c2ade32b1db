package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Channels       *handlers.ChannelsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.OpenTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/mute", cfg.Tickets.ToggleMute)
	tickets.Post("/:id/unmute", cfg.Tickets.Unmute)

	staffOnly := auth.RequireStaff()
	tickets.Get("/", staffOnly, cfg.StaffTickets.ListOpenTickets)
	tickets.Get("/:id/events", staffOnly, cfg.StaffTickets.ListEvents)
	tickets.Post("/:id/claim", staffOnly, cfg.StaffTickets.ClaimTicket)
	tickets.Post("/:id/unclaim", staffOnly, cfg.StaffTickets.UnclaimTicket)
	tickets.Post("/:id/archive", staffOnly, cfg.StaffTickets.ArchiveTicket)
	tickets.Post("/:id/members", staffOnly, cfg.StaffTickets.AddMember)

	channels := app.Group("/channels", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleSystem))
	channels.Post("/:channel_id/messages", cfg.Channels.RecordMessage)
}
