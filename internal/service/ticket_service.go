package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/scheduler"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketService coordinates the ticket lifecycle. It keeps no state of its
// own: every command re-reads the ticket and applies a guarded transition.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketEventRepository
	scheduler  *scheduler.Scheduler
	gateway    notify.Gateway
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.TicketConfig
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	EventRepo  repository.TicketEventRepository
	Scheduler  *scheduler.Scheduler
	Gateway    notify.Gateway
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     config.TicketConfig
}

// OpenTicketInput describes a ticket creation request.
type OpenTicketInput struct {
	OwnerID int64
	Type    domain.TicketType
	Reason  *string
}

// Result is the outcome of a command. A transition that happened is always
// reported as a Result; side effects that failed are listed in Warnings.
type Result struct {
	Ticket          *domain.Ticket
	Notice          string
	AlreadyClaimed  bool
	CancelledTimers int64
	Warnings        []string
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) merge(other *Result) {
	if other == nil {
		return
	}
	if other.Ticket != nil {
		r.Ticket = other.Ticket
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.EventRepo,
		scheduler:  deps.Scheduler,
		gateway:    deps.Gateway,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        deps.Config,
	}
}

// OpenTicket creates a ticket, its private channel and its escalation timer.
// Members may only open member or age-verification tickets for themselves.
func (s *TicketService) OpenTicket(ctx context.Context, actor domain.Actor, input OpenTicketInput) (*Result, error) {
	if input.OwnerID == 0 {
		input.OwnerID = actor.ID
	}
	if input.Type == "" {
		input.Type = domain.TicketTypeMember
		if actor.Staff && input.OwnerID != actor.ID {
			input.Type = domain.TicketTypeStaff
		}
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewValidationError("unknown ticket type", map[string]any{"type": input.Type})
	}
	if input.Reason != nil {
		reason := strings.TrimSpace(*input.Reason)
		if reason == "" {
			input.Reason = nil
		} else {
			input.Reason = &reason
		}
	}
	if !actor.Staff {
		if input.OwnerID != actor.ID {
			return nil, apperrors.NewForbidden("members can only open tickets for themselves")
		}
		if input.Type == domain.TicketTypeStaff {
			return nil, apperrors.NewForbidden("only staff can open staff-initiated tickets")
		}
	}

	existing, err := s.tickets.GetActiveForOwner(ctx, input.OwnerID)
	switch {
	case err == nil:
		return nil, existingTicketError(existing.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewStoreUnavailable(err)
	}

	now := s.now()
	ticket := &domain.Ticket{
		Type:      input.Type,
		OwnerID:   input.OwnerID,
		OpenerID:  actor.ID,
		Reason:    input.Reason,
		Status:    domain.TicketStatusOpen,
		CreatedAt: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrActiveTicketExists) {
			return nil, existingTicketError(0)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	logger := s.logger.With(zap.Int64("ticket_id", ticket.ID), zap.Int64("owner_id", ticket.OwnerID))
	if err := s.scheduleEscalation(ctx, ticket); err != nil {
		logger.Error("schedule escalation timer", zap.Error(err))
		if _, discardErr := s.tickets.Discard(ctx, ticket.ID); discardErr != nil {
			logger.Error("discard ticket without escalation", zap.Error(discardErr))
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	res := &Result{Ticket: ticket}
	if channelID, err := s.gateway.CreatePrivateChannel(ctx, ticket.OwnerID, s.permittedFor(ticket)); err != nil {
		logger.Warn("create ticket channel", zap.Error(err))
		res.warn("ticket channel could not be created")
	} else if err := s.tickets.SetChannel(ctx, ticket.ID, channelID); err != nil {
		logger.Error("store ticket channel", zap.Int64("channel_id", channelID), zap.Error(err))
		res.warn("ticket channel could not be linked")
	} else {
		ticket.ChannelID = &channelID
	}

	s.record(ctx, res, ticket.ID, domain.TicketEventCreated, &actor.ID, derefString(ticket.Reason))

	s.send(ctx, res, ticket, introMessage(ticket))
	s.direct(ctx, res, ticket.OwnerID, openedDirectMessage(ticket))

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			Type:      ticket.Type,
			OwnerID:   ticket.OwnerID,
			ChannelID: ticket.ChannelID,
			Reason:    ticket.Reason,
		},
	})
	logger.Info("ticket opened", zap.String("type", string(ticket.Type)), zap.Int64("opener_id", actor.ID))
	return res, nil
}

// ClaimTicket assigns an open ticket to a staff member. Claiming an already
// claimed ticket is reported, not rejected.
func (s *TicketService) ClaimTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can claim tickets")
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClaimed {
		return alreadyClaimed(ticket), nil
	}
	if ticket.Status != domain.TicketStatusOpen {
		return nil, inactiveTicketError(ticket, "claimed")
	}

	won, err := s.tickets.Claim(ctx, ticket.ID, actor.ID, s.now())
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		current, err := s.load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.TicketStatusClaimed {
			return alreadyClaimed(current), nil
		}
		return nil, inactiveTicketError(current, "claimed")
	}

	res := &Result{Ticket: ticket}
	s.refresh(ctx, res)
	s.record(ctx, res, ticket.ID, domain.TicketEventClaimed, &actor.ID, "")
	s.send(ctx, res, ticket, notify.Message{
		Title:    "Ticket claimed",
		Text:     fmt.Sprintf("%s will be helping you with this ticket.", mention(actor.ID)),
		Severity: notify.SeveritySuccess,
	})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusClaimed},
	})
	return res, nil
}

// UnclaimTicket returns a claimed ticket to the open queue.
func (s *TicketService) UnclaimTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can unclaim tickets")
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusClaimed {
		if ticket.Status == domain.TicketStatusOpen {
			return &Result{Ticket: ticket, Notice: "ticket is not claimed"}, nil
		}
		return nil, inactiveTicketError(ticket, "unclaimed")
	}

	won, err := s.tickets.Unclaim(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		current, err := s.load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Ticket: current, Notice: "ticket is not claimed"}, nil
	}

	res := &Result{Ticket: ticket}
	s.refresh(ctx, res)
	s.record(ctx, res, ticket.ID, domain.TicketEventUnclaimed, &actor.ID, "")
	s.send(ctx, res, ticket, notify.Text("This ticket has been released and is waiting for another staff member."))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketUnclaimed,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusClaimed, NewStatus: domain.TicketStatusOpen},
	})
	return res, nil
}

// CloseTicket closes an active ticket and cancels its pending escalations.
// Staff may always close; the owner may close a member ticket only inside
// the close window.
func (s *TicketService) CloseTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeClose(actor, ticket); err != nil {
		return nil, err
	}
	if !ticket.Status.Active() {
		return nil, inactiveTicketError(ticket, "closed")
	}

	oldStatus := ticket.Status
	won, err := s.tickets.Close(ctx, ticket.ID, actor.ID, s.now())
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		current, err := s.load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		return nil, inactiveTicketError(current, "closed")
	}

	res := &Result{Ticket: ticket}
	for _, kind := range []domain.TaskKind{domain.TaskKindMemberNudge, domain.TaskKindStaffReminder, domain.TaskKindMuteExpiry} {
		n, err := s.scheduler.CancelTimersFor(ctx, kind, domain.PayloadTicketID, strconv.FormatInt(ticket.ID, 10))
		if err != nil {
			s.logger.Error("cancel ticket timers", zap.Int64("ticket_id", ticket.ID), zap.String("kind", string(kind)), zap.Error(err))
			res.warn("pending %s timers could not be cancelled", kind)
			continue
		}
		res.CancelledTimers += n
	}
	s.refresh(ctx, res)

	if ch := ticket.Channel(); ch != 0 {
		if err := s.gateway.SetMemberSendCapability(ctx, ch, ticket.OwnerID, notify.Bool(false)); err != nil {
			s.logger.Warn("lock closed ticket channel", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("ticket channel could not be locked")
		}
	}
	s.record(ctx, res, ticket.ID, domain.TicketEventClosed, &actor.ID, fmt.Sprintf("cancelled %d pending timers", res.CancelledTimers))
	s.send(ctx, res, ticket, notify.Message{
		Title:    "Ticket closed",
		Text:     fmt.Sprintf("Closed by %s.", mention(actor.ID)),
		Severity: notify.SeverityWarning,
	})
	s.direct(ctx, res, ticket.OwnerID, notify.Text(fmt.Sprintf("Your support ticket #%d has been closed.", ticket.ID)))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: domain.TicketStatusClosed,
			Cancelled: res.CancelledTimers,
		},
	})

	if s.cfg.AutoArchiveOnClose {
		archiver := domain.StaffActor(s.cfg.SystemActorID)
		if actor.Staff {
			archiver = actor
		}
		archived, err := s.ArchiveTicket(ctx, archiver, ticket.ID)
		if err != nil {
			s.logger.Warn("auto-archive closed ticket", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("ticket could not be archived automatically")
		} else {
			res.merge(archived)
		}
	}
	return res, nil
}

// ArchiveTicket moves a closed ticket's channel to the archive. Archived
// tickets accept no further transitions.
func (s *TicketService) ArchiveTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can archive tickets")
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusClosed {
		return nil, archiveStateError(ticket)
	}

	won, err := s.tickets.Archive(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		current, err := s.load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		return nil, archiveStateError(current)
	}

	res := &Result{Ticket: ticket}
	if ch := ticket.Channel(); ch != 0 {
		if err := s.gateway.MoveToArchive(ctx, ch); err != nil {
			s.logger.Warn("archive ticket channel", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("ticket channel could not be moved to the archive")
		}
	}
	s.refresh(ctx, res)
	s.record(ctx, res, ticket.ID, domain.TicketEventArchived, &actor.ID, "")
	s.publish(ctx, events.Event{
		Type:     events.EventTicketArchived,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusClosed, NewStatus: domain.TicketStatusArchived},
	})
	return res, nil
}

// ToggleMute mutes the owner of an unmuted ticket, or unmutes a muted one.
func (s *TicketService) ToggleMute(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can mute ticket owners")
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Muted {
		return s.unmute(ctx, ticket, &actor.ID, events.ActorFrom(actor), false)
	}
	if !ticket.Status.Active() {
		return nil, inactiveTicketError(ticket, "muted")
	}

	duration := s.cfg.MuteDuration()
	expiresAt := s.now().Add(duration)
	won, err := s.tickets.Mute(ctx, ticket.ID, expiresAt)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		current, err := s.load(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		if current.Muted {
			return &Result{Ticket: current, Notice: "ticket owner is already muted"}, nil
		}
		return nil, inactiveTicketError(current, "muted")
	}

	// A mute without its expiry task would never lift, so undo it.
	if _, err := s.scheduler.Schedule(ctx, domain.TaskKindMuteExpiry, expiresAt, domain.TicketPayload(ticket.ID)); err != nil {
		s.logger.Error("schedule mute expiry", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		if _, undoErr := s.tickets.Unmute(ctx, ticket.ID); undoErr != nil {
			s.logger.Error("undo mute without expiry", zap.Int64("ticket_id", ticket.ID), zap.Error(undoErr))
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	res := &Result{Ticket: ticket}
	if ch := ticket.Channel(); ch != 0 {
		if err := s.gateway.SetMemberSendCapability(ctx, ch, ticket.OwnerID, notify.Bool(false)); err != nil {
			s.logger.Warn("deny owner send capability", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("owner send permission could not be revoked")
		}
	}
	s.refresh(ctx, res)
	s.record(ctx, res, ticket.ID, domain.TicketEventMuted, &actor.ID, "until "+expiresAt.UTC().Format(time.RFC3339))
	s.send(ctx, res, ticket, notify.Message{
		Title:    "Ticket muted",
		Text:     fmt.Sprintf("%s has been muted for %s.", mention(ticket.OwnerID), duration),
		Severity: notify.SeverityWarning,
	})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketMuted,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketMuteChangedPayload{Muted: true, ExpiresAt: &expiresAt},
	})
	return res, nil
}

// UnmuteTicket restores the owner's send capability. Unmuting an unmuted
// ticket is a no-op.
func (s *TicketService) UnmuteTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can unmute ticket owners")
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Muted {
		return &Result{Ticket: ticket, Notice: "ticket owner is not muted"}, nil
	}
	return s.unmute(ctx, ticket, &actor.ID, events.ActorFrom(actor), false)
}

// unmute clears the mute flag if it is still set. Manual unmutes also
// cancel the pending expiry so it cannot cut a later mute short.
func (s *TicketService) unmute(ctx context.Context, ticket *domain.Ticket, actorID *int64, actor events.Actor, expired bool) (*Result, error) {
	res := &Result{Ticket: ticket}
	won, err := s.tickets.Unmute(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !won {
		res.Notice = "ticket owner is not muted"
		return res, nil
	}

	if ch := ticket.Channel(); ch != 0 {
		if err := s.gateway.SetMemberSendCapability(ctx, ch, ticket.OwnerID, nil); err != nil {
			s.logger.Warn("restore owner send capability", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("owner send permission could not be restored")
		}
	}
	if !expired {
		if _, err := s.scheduler.CancelTimersFor(ctx, domain.TaskKindMuteExpiry, domain.PayloadTicketID, strconv.FormatInt(ticket.ID, 10)); err != nil {
			s.logger.Warn("cancel mute expiry", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			res.warn("pending mute expiry could not be cancelled")
		}
	}
	s.refresh(ctx, res)

	detail := "unmuted"
	text := fmt.Sprintf("%s can send messages again.", mention(ticket.OwnerID))
	if expired {
		detail = "mute expired"
		text = fmt.Sprintf("Mute expired. %s", text)
	}
	s.record(ctx, res, ticket.ID, domain.TicketEventUnmuted, actorID, detail)
	s.send(ctx, res, ticket, notify.Message{Title: "Ticket unmuted", Text: text, Severity: notify.SeverityInfo})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketUnmuted,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.TicketMuteChangedPayload{Muted: false},
	})
	return res, nil
}

// AddMember grants another member access to an active ticket's channel.
func (s *TicketService) AddMember(ctx context.Context, actor domain.Actor, ticketID, memberID int64) (*Result, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can add members to tickets")
	}
	if memberID <= 0 {
		return nil, apperrors.NewValidationError("member id is required", nil)
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.Active() {
		return nil, inactiveTicketError(ticket, "joined")
	}
	if memberID == ticket.OwnerID {
		return &Result{Ticket: ticket, Notice: "member already owns this ticket"}, nil
	}

	res := &Result{Ticket: ticket}
	if ch := ticket.Channel(); ch != 0 {
		if err := s.gateway.SetMemberSendCapability(ctx, ch, memberID, notify.Bool(true)); err != nil {
			s.logger.Warn("grant member access", zap.Int64("ticket_id", ticket.ID), zap.Int64("member_id", memberID), zap.Error(err))
			res.warn("member could not be granted access to the ticket channel")
		}
	} else {
		res.warn("ticket has no channel to add the member to")
	}
	s.record(ctx, res, ticket.ID, domain.TicketEventMemberAdded, &actor.ID, "member "+strconv.FormatInt(memberID, 10))
	s.send(ctx, res, ticket, notify.Text(fmt.Sprintf("%s was added to this ticket by %s.", mention(memberID), mention(actor.ID))))
	s.direct(ctx, res, memberID, notify.Text(fmt.Sprintf("You were added to support ticket #%d.", ticket.ID)))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketMemberAdded,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketMemberAddedPayload{MemberID: memberID},
	})
	return res, nil
}

// RecordMessage reacts to message activity in a ticket channel. A reply
// from the owner cancels pending nudges for that ticket.
func (s *TicketService) RecordMessage(ctx context.Context, channelID, authorID int64) (*Result, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if errors.Is(err, repository.ErrNotFound) {
		return &Result{Notice: "channel is not a ticket"}, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	res := &Result{Ticket: ticket}
	if authorID != ticket.OwnerID || !ticket.Status.Active() {
		return res, nil
	}

	n, err := s.scheduler.CancelTimersFor(ctx, domain.TaskKindMemberNudge, domain.PayloadTicketID, strconv.FormatInt(ticket.ID, 10))
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	res.CancelledTimers = n
	if n > 0 {
		res.Notice = fmt.Sprintf("cancelled %d pending nudge(s)", n)
		s.logger.Debug("owner replied, nudges cancelled", zap.Int64("ticket_id", ticket.ID), zap.Int64("count", n))
	}
	return res, nil
}

// ListOpenTickets returns open and claimed tickets, oldest first.
func (s *TicketService) ListOpenTickets(ctx context.Context, actor domain.Actor) ([]domain.Ticket, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can list open tickets")
	}
	tickets, err := s.tickets.ListActive(ctx)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return tickets, nil
}

// GetTicket returns a ticket to staff or to its owner.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && ticket.OwnerID != actor.ID {
		return nil, apperrors.NewForbidden("you can only view your own tickets")
	}
	return ticket, nil
}

// ListEvents returns the ticket history in order.
func (s *TicketService) ListEvents(ctx context.Context, actor domain.Actor, ticketID int64) ([]domain.TicketEvent, error) {
	if !actor.Staff {
		return nil, apperrors.NewForbidden("only staff can view ticket history")
	}
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return history, nil
}

func (s *TicketService) authorizeClose(actor domain.Actor, ticket *domain.Ticket) error {
	if actor.Staff {
		return nil
	}
	if actor.ID != ticket.OwnerID {
		return apperrors.NewForbidden("only staff or the ticket owner can close this ticket")
	}
	if ticket.Type != domain.TicketTypeMember {
		return apperrors.NewForbidden("only staff can close this type of ticket")
	}
	window := s.cfg.CloseWindow()
	if s.now().Sub(ticket.CreatedAt) > window {
		return apperrors.NewForbidden(fmt.Sprintf("tickets can only be self-closed within %s of opening; ask staff to close it", window))
	}
	return nil
}

func (s *TicketService) now() time.Time {
	if s.scheduler != nil {
		return s.scheduler.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TicketService) load(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return ticket, nil
}

// refresh re-reads the ticket after a transition; on failure the stale copy stays.
func (s *TicketService) refresh(ctx context.Context, res *Result) {
	current, err := s.tickets.GetByID(ctx, res.Ticket.ID)
	if err != nil {
		s.logger.Warn("reload ticket", zap.Int64("ticket_id", res.Ticket.ID), zap.Error(err))
		return
	}
	res.Ticket = current
}

func (s *TicketService) permittedFor(ticket *domain.Ticket) []int64 {
	var permitted []int64
	if s.cfg.StaffRoleID != 0 {
		permitted = append(permitted, s.cfg.StaffRoleID)
	}
	if ticket.OpenerID != ticket.OwnerID {
		permitted = append(permitted, ticket.OpenerID)
	}
	return permitted
}

// scheduleEscalation persists the timer that matches the ticket type.
// Age-verification tickets have none.
func (s *TicketService) scheduleEscalation(ctx context.Context, ticket *domain.Ticket) error {
	var (
		kind  domain.TaskKind
		delay time.Duration
	)
	switch ticket.Type {
	case domain.TicketTypeMember:
		kind, delay = domain.TaskKindMemberNudge, s.cfg.NudgeDelay()
	case domain.TicketTypeStaff:
		kind, delay = domain.TaskKindStaffReminder, s.cfg.StaffReminderDelay()
	default:
		return nil
	}
	_, err := s.scheduler.Schedule(ctx, kind, s.now().Add(delay), domain.TicketPayload(ticket.ID))
	return err
}

func (s *TicketService) record(ctx context.Context, res *Result, ticketID int64, kind domain.TicketEventKind, actorID *int64, detail string) {
	event := &domain.TicketEvent{
		TicketID:  ticketID,
		Kind:      kind,
		ActorID:   actorID,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.history.Append(ctx, event); err != nil {
		s.logger.Error("append ticket event", zap.Int64("ticket_id", ticketID), zap.String("kind", string(kind)), zap.Error(err))
		if res != nil {
			res.warn("ticket history could not be updated")
		}
	}
}

func (s *TicketService) send(ctx context.Context, res *Result, ticket *domain.Ticket, msg notify.Message) {
	ch := ticket.Channel()
	if ch == 0 {
		return
	}
	if _, err := s.gateway.Send(ctx, ch, msg); err != nil {
		s.logger.Warn("send ticket message", zap.Int64("ticket_id", ticket.ID), zap.Int64("channel_id", ch), zap.Error(err))
		if res != nil {
			res.warn("message could not be posted in the ticket channel")
		}
	}
}

func (s *TicketService) direct(ctx context.Context, res *Result, memberID int64, msg notify.Message) {
	if err := s.gateway.SendDirect(ctx, memberID, msg); err != nil {
		s.logger.Warn("send direct message", zap.Int64("member_id", memberID), zap.Error(err))
		if res != nil {
			res.warn("member %d could not be notified directly", memberID)
		}
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish ticket event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func alreadyClaimed(ticket *domain.Ticket) *Result {
	by := "another staff member"
	if ticket.ClaimedBy != nil {
		by = strconv.FormatInt(*ticket.ClaimedBy, 10)
	}
	return &Result{
		Ticket:         ticket,
		Notice:         "ticket already claimed by " + by,
		AlreadyClaimed: true,
	}
}

func existingTicketError(ticketID int64) error {
	details := map[string]any{}
	if ticketID != 0 {
		details["ticket_id"] = ticketID
	}
	return apperrors.NewConflict("member already has an open ticket; close it before opening another", details)
}

func inactiveTicketError(ticket *domain.Ticket, verb string) error {
	return apperrors.NewConflict(
		fmt.Sprintf("ticket #%d is %s and cannot be %s", ticket.ID, ticket.Status, verb),
		map[string]any{"ticket_id": ticket.ID, "status": ticket.Status},
	)
}

func archiveStateError(ticket *domain.Ticket) error {
	if ticket.Status == domain.TicketStatusArchived {
		return apperrors.NewConflict(fmt.Sprintf("ticket #%d is already archived", ticket.ID), map[string]any{"ticket_id": ticket.ID})
	}
	return apperrors.NewConflict(
		fmt.Sprintf("ticket #%d must be closed before it can be archived", ticket.ID),
		map[string]any{"ticket_id": ticket.ID, "status": ticket.Status},
	)
}

func introMessage(ticket *domain.Ticket) notify.Message {
	text := fmt.Sprintf("Welcome %s. A staff member will be with you shortly.", mention(ticket.OwnerID))
	if ticket.Type == domain.TicketTypeStaff {
		text = fmt.Sprintf("%s, %s opened this ticket with you.", mention(ticket.OwnerID), mention(ticket.OpenerID))
	}
	if ticket.Reason != nil {
		text += "\nReason: " + *ticket.Reason
	}
	return notify.Message{
		Title:    fmt.Sprintf("Support ticket #%d", ticket.ID),
		Text:     text,
		Severity: notify.SeverityInfo,
	}
}

func openedDirectMessage(ticket *domain.Ticket) notify.Message {
	if ticket.Type == domain.TicketTypeStaff {
		return notify.Text(fmt.Sprintf("A staff member opened support ticket #%d with you.", ticket.ID))
	}
	return notify.Text(fmt.Sprintf("Your support ticket #%d is open.", ticket.ID))
}

func mention(id int64) string {
	return "<@" + strconv.FormatInt(id, 10) + ">"
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
