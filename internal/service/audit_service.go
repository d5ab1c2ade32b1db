package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// TransitionRecorder counts lifecycle events.
type TransitionRecorder interface {
	RecordTransition(event string)
}

// AuditService subscribes to ticket lifecycle events, logs them and counts
// them for metrics.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    TransitionRecorder
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics TransitionRecorder) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to every lifecycle event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.SubscribeAll(a.handle)
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID),
		zap.Bool("system", event.Actor.System),
		zap.Any("payload", event.Payload),
	}
	if event.Actor.ID != nil {
		fields = append(fields, zap.Int64("actor_id", *event.Actor.ID))
	}
	a.logger.Info("ticket event", fields...)
	if a.metrics != nil {
		a.metrics.RecordTransition(string(event.Type))
	}
	return nil
}
