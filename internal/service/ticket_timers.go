package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/scheduler"
)

// errMissingTicketID is returned for timer payloads without a ticket id.
var errMissingTicketID = errors.New("timer payload has no ticket_id")

// RegisterHandlers binds the ticket timers to the scheduler.
func (s *TicketService) RegisterHandlers(sched *scheduler.Scheduler) error {
	handlers := map[domain.TaskKind]scheduler.Handler{
		domain.TaskKindMemberNudge:   s.handleNudge,
		domain.TaskKindStaffReminder: s.handleStaffReminder,
		domain.TaskKindMuteExpiry:    s.handleMuteExpiry,
	}
	for kind, handler := range handlers {
		if err := sched.Register(kind, handler); err != nil {
			return err
		}
	}
	return nil
}

// handleNudge reminds the owner while the ticket is still unclaimed and open.
func (s *TicketService) handleNudge(ctx context.Context, taskID int64, payload domain.Payload) error {
	ticket, err := s.timerTicket(ctx, taskID, payload)
	if err != nil || ticket == nil {
		return err
	}
	logger := s.logger.With(zap.Int64("task_id", taskID), zap.Int64("ticket_id", ticket.ID))
	if ticket.Status != domain.TicketStatusOpen {
		logger.Debug("nudge suppressed", zap.String("status", string(ticket.Status)))
		return nil
	}

	won, err := s.tickets.IncrementNudge(ctx, ticket.ID, s.now())
	if err != nil {
		return fmt.Errorf("increment nudge count: %w", err)
	}
	if !won {
		logger.Debug("nudge suppressed, ticket left open state")
		return nil
	}
	count := ticket.NudgeCount + 1

	var errs []error
	detail := fmt.Sprintf("nudge %d", count)
	if ch := ticket.Channel(); ch == 0 {
		detail += " (no channel)"
	} else if _, err := s.gateway.Send(ctx, ch, notify.Message{
		Title:    "Still waiting",
		Text:     fmt.Sprintf("%s, your ticket is still in the queue. A staff member will reply as soon as possible.", mention(ticket.OwnerID)),
		Severity: notify.SeverityInfo,
	}); err != nil {
		detail += " (delivery failed)"
		errs = append(errs, fmt.Errorf("post nudge: %w", err))
	}
	if alerts := s.cfg.StaffAlertsChannelID; alerts != 0 {
		if _, err := s.gateway.Send(ctx, alerts, notify.Message{
			Title:    "Ticket waiting",
			Text:     fmt.Sprintf("Ticket #%d from %s is still unclaimed (nudge %d).", ticket.ID, mention(ticket.OwnerID), count),
			Severity: notify.SeverityWarning,
		}); err != nil {
			errs = append(errs, fmt.Errorf("alert staff: %w", err))
		}
	}

	systemID := s.cfg.SystemActorID
	s.record(ctx, nil, ticket.ID, domain.TicketEventNudgeSent, &systemID, detail)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketNudged,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload:  events.TicketEscalatedPayload{TaskID: taskID, NudgeCount: count},
	})
	logger.Info("ticket owner nudged", zap.Int("nudge_count", count))
	return errors.Join(errs...)
}

// handleStaffReminder pings staff about a staff-initiated ticket nobody claimed.
func (s *TicketService) handleStaffReminder(ctx context.Context, taskID int64, payload domain.Payload) error {
	ticket, err := s.timerTicket(ctx, taskID, payload)
	if err != nil || ticket == nil {
		return err
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.ClaimedBy != nil {
		s.logger.Debug("staff reminder suppressed",
			zap.Int64("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)),
		)
		return nil
	}

	target := s.cfg.StaffAlertsChannelID
	if target == 0 {
		target = ticket.Channel()
	}
	if target == 0 {
		s.logger.Warn("staff reminder has nowhere to post", zap.Int64("ticket_id", ticket.ID))
		return nil
	}
	if _, err := s.gateway.Send(ctx, target, notify.Message{
		Title:    "Unclaimed ticket",
		Text:     fmt.Sprintf("Ticket #%d opened by %s for %s has not been claimed yet.", ticket.ID, mention(ticket.OpenerID), mention(ticket.OwnerID)),
		Severity: notify.SeverityWarning,
	}); err != nil {
		return fmt.Errorf("post staff reminder: %w", err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventStaffReminded,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload:  events.TicketEscalatedPayload{TaskID: taskID},
	})
	return nil
}

// handleMuteExpiry lifts a mute that is still in force. A manual unmute, or a
// newer mute with a later expiry, makes it a no-op.
func (s *TicketService) handleMuteExpiry(ctx context.Context, taskID int64, payload domain.Payload) error {
	ticket, err := s.timerTicket(ctx, taskID, payload)
	if err != nil || ticket == nil {
		return err
	}
	if !ticket.Muted {
		s.logger.Debug("mute already lifted", zap.Int64("ticket_id", ticket.ID))
		return nil
	}
	if ticket.MuteExpiresAt != nil && ticket.MuteExpiresAt.After(s.now()) {
		s.logger.Debug("stale mute expiry", zap.Int64("ticket_id", ticket.ID), zap.Time("expires_at", *ticket.MuteExpiresAt))
		return nil
	}

	systemID := s.cfg.SystemActorID
	res, err := s.unmute(ctx, ticket, &systemID, events.SystemActor(), true)
	if err != nil {
		return err
	}
	if len(res.Warnings) > 0 {
		s.logger.Warn("mute expiry side effects failed", zap.Int64("ticket_id", ticket.ID), zap.Strings("warnings", res.Warnings))
	}
	return nil
}

// timerTicket resolves the ticket a timer refers to. A ticket that no longer
// exists yields (nil, nil).
func (s *TicketService) timerTicket(ctx context.Context, taskID int64, payload domain.Payload) (*domain.Ticket, error) {
	ticketID, ok := payload.Int64(domain.PayloadTicketID)
	if !ok {
		return nil, errMissingTicketID
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("timer for unknown ticket", zap.Int64("task_id", taskID), zap.Int64("ticket_id", ticketID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %d: %w", ticketID, err)
	}
	return ticket, nil
}
