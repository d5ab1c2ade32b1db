package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

type ticketCommand func(ctx context.Context, actor domain.Actor, ticketID int64) (*service.Result, error)

// StaffTicketsHandler handles staff-only ticket endpoints.
type StaffTicketsHandler struct {
	tickets *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService}
}

// ListOpenTickets GET /tickets.
func (h *StaffTicketsHandler) ListOpenTickets(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListOpenTickets(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	items := make([]*dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListEvents GET /tickets/:id/events.
func (h *StaffTicketsHandler) ListEvents(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	history, err := h.tickets.ListEvents(c.UserContext(), principal.Actor(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketEventResponses(history)})
}

// ClaimTicket POST /tickets/:id/claim.
func (h *StaffTicketsHandler) ClaimTicket(c *fiber.Ctx) error {
	return runCommand(c, h.tickets.ClaimTicket)
}

// UnclaimTicket POST /tickets/:id/unclaim.
func (h *StaffTicketsHandler) UnclaimTicket(c *fiber.Ctx) error {
	return runCommand(c, h.tickets.UnclaimTicket)
}

// ArchiveTicket POST /tickets/:id/archive.
func (h *StaffTicketsHandler) ArchiveTicket(c *fiber.Ctx) error {
	return runCommand(c, h.tickets.ArchiveTicket)
}

// AddMember POST /tickets/:id/members.
func (h *StaffTicketsHandler) AddMember(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.MemberID <= 0 {
		return apperrors.NewValidationError("member_id required", nil)
	}
	res, err := h.tickets.AddMember(c.UserContext(), principal.Actor(), ticketID, req.MemberID)
	if err != nil {
		return err
	}
	return c.JSON(commandResponse(res))
}
