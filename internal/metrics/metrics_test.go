package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/sos-trigger/internal/logic"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestSessionLifecycleGauges(t *testing.T) {
	m := New()

	m.OnAction(logic.ActionEvent{Action: logic.ActionStartSession, Source: "gpio", Level: 1, SecondsRemaining: 10})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.armed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.level))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.secondsRemaining))

	m.OnTick(logic.TickEvent{SecondsRemaining: 7, Level: 1})
	assert.Equal(t, 7.0, testutil.ToFloat64(m.secondsRemaining))

	m.OnAction(logic.ActionEvent{Action: logic.ActionEscalate, Source: "gpio", Level: 2})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.level))

	m.OnTerminal(logic.TerminalEvent{
		Status:    logic.StatusFired,
		StartedAt: t0,
		EndedAt:   t0.Add(10 * time.Second),
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.armed))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.secondsRemaining))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues("FIRED")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionDuration))
}

func TestActionsCountedBySource(t *testing.T) {
	m := New()

	m.OnAction(logic.ActionEvent{Action: logic.ActionStartFakeCall, Source: "evdev"})
	m.OnAction(logic.ActionEvent{Action: logic.ActionStartFakeCall, Source: "evdev"})
	m.OnAction(logic.ActionEvent{Action: logic.ActionStartFakeCall, Source: "gpio"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("START_FAKE_CALL", "evdev")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("START_FAKE_CALL", "gpio")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.armed))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.OnAction(logic.ActionEvent{Action: logic.ActionStartSession})
	m.OnTick(logic.TickEvent{})
	m.OnTerminal(logic.TerminalEvent{})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.OnTerminal(logic.TerminalEvent{Status: logic.StatusCancelled})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sos_trigger_session_outcomes_total{status="CANCELLED"} 1`)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestWrapHandlerRecordsStatus(t *testing.T) {
	m := New()
	h := m.WrapHandler("/cancel", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cancel", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/cancel", "405")))
}
