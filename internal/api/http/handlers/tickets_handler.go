package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketsHandler serves the endpoints both members and staff use.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// OpenTicket POST /tickets.
func (h *TicketsHandler) OpenTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.OpenTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.Type != "" && !req.Type.Valid() {
		return apperrors.NewValidationError("unknown ticket type", map[string]any{"type": req.Type})
	}

	input := service.OpenTicketInput{Type: req.Type, Reason: req.Reason}
	if req.OwnerID != nil {
		input.OwnerID = *req.OwnerID
	}
	res, err := h.service.OpenTicket(c.UserContext(), principal.Actor(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(commandResponse(res))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal.Actor(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	return runCommand(c, h.service.CloseTicket)
}

// ToggleMute POST /tickets/:id/mute.
func (h *TicketsHandler) ToggleMute(c *fiber.Ctx) error {
	return runCommand(c, h.service.ToggleMute)
}

// Unmute POST /tickets/:id/unmute.
func (h *TicketsHandler) Unmute(c *fiber.Ctx) error {
	return runCommand(c, h.service.UnmuteTicket)
}

func runCommand(c *fiber.Ctx, run ticketCommand) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	res, err := run(c.UserContext(), principal.Actor(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(commandResponse(res))
}

func currentPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func ticketIDParam(c *fiber.Ctx) (int64, error) {
	return int64Param(c, "id")
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: c.Params(name)})
	}
	return id, nil
}

func commandResponse(res *service.Result) dto.CommandResponse {
	return dto.CommandResponse{
		Data:            dto.NewTicketResponse(res.Ticket),
		Notice:          res.Notice,
		AlreadyClaimed:  res.AlreadyClaimed,
		CancelledTimers: res.CancelledTimers,
		Warnings:        res.Warnings,
	}
}
