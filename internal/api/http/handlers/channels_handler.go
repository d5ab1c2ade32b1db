package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// ChannelsHandler receives message activity from the chat adapter.
type ChannelsHandler struct {
	tickets *service.TicketService
}

// NewChannelsHandler constructs handler.
func NewChannelsHandler(ticketService *service.TicketService) *ChannelsHandler {
	return &ChannelsHandler{tickets: ticketService}
}

// RecordMessage POST /channels/:channel_id/messages.
func (h *ChannelsHandler) RecordMessage(c *fiber.Ctx) error {
	channelID, err := int64Param(c, "channel_id")
	if err != nil {
		return err
	}
	var req dto.MessageActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AuthorID <= 0 {
		return apperrors.NewValidationError("author_id required", nil)
	}
	res, err := h.tickets.RecordMessage(c.UserContext(), channelID, req.AuthorID)
	if err != nil {
		return err
	}
	return c.JSON(commandResponse(res))
}
