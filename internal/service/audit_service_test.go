package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/events"
)

type transitionCounter map[string]int

func (c transitionCounter) RecordTransition(event string) { c[event]++ }

func TestAuditService_LogsAndCountsEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	counter := transitionCounter{}
	NewAuditService(dispatcher, zap.New(core), counter).RegisterHandlers()

	actorID := int64(500)
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketClaimed,
		TicketID: 12,
		Actor:    events.Actor{ID: &actorID, Staff: true},
	}))
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketNudged,
		TicketID: 12,
		Actor:    events.SystemActor(),
	}))

	assert.Equal(t, 1, counter[string(events.EventTicketClaimed)])
	assert.Equal(t, 1, counter[string(events.EventTicketNudged)])

	entries := logs.FilterMessage("ticket event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(12), entries[0].ContextMap()["ticket_id"])
	assert.Equal(t, int64(500), entries[0].ContextMap()["actor_id"])
	assert.Equal(t, true, entries[1].ContextMap()["system"])
}
