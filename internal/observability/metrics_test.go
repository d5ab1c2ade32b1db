package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("support_desk")

	m.RecordTask("ticket_member_nudge", "fired")
	m.RecordTask("ticket_member_nudge", "fired")
	m.RecordTask("ticket_mute_expire", "failed")
	m.RecordTransition("ticket_claimed")
	m.RecordRequest("/tickets", "POST", 201, 10*time.Millisecond)
	m.RecordError("/tickets/:id/claim", "POST", "FORBIDDEN")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.taskCount.WithLabelValues("ticket_member_nudge", "fired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskCount.WithLabelValues("ticket_mute_expire", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionCount.WithLabelValues("ticket_claimed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("/tickets", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorCount.WithLabelValues("/tickets/:id/claim", "POST", "FORBIDDEN")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTask("k", "fired")
		m.RecordTransition("x")
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
	})
}
