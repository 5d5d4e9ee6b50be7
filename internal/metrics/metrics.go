// Package metrics exposes Prometheus instruments for gestures and sessions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweeney/sos-trigger/internal/logic"
)

const namespace = "sos_trigger"

type Metrics struct {
	registry *prometheus.Registry

	actionsTotal      *prometheus.CounterVec
	outcomesTotal     *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	armed             prometheus.Gauge
	secondsRemaining  prometheus.Gauge
	level             prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the instruments on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions by action and source.",
		}, []string{"action", "source"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Ended escalation sessions by status.",
		}, []string{"status"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from arming to the end of a session.",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 60, 120},
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_armed",
			Help:      "1 while an escalation session is armed.",
		}),
		secondsRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_seconds_remaining",
			Help:      "Countdown seconds left in the armed session.",
		}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_level",
			Help:      "Escalation level of the armed session.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.actionsTotal,
		m.outcomesTotal,
		m.sessionDuration,
		m.armed,
		m.secondsRemaining,
		m.level,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OnAction(ev logic.ActionEvent) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(string(ev.Action), ev.Source).Inc()
	switch ev.Action {
	case logic.ActionStartSession:
		m.armed.Set(1)
		m.level.Set(float64(ev.Level))
		m.secondsRemaining.Set(float64(ev.SecondsRemaining))
	case logic.ActionEscalate:
		m.level.Set(float64(ev.Level))
	}
}

func (m *Metrics) OnTick(ev logic.TickEvent) {
	if m == nil {
		return
	}
	m.secondsRemaining.Set(float64(ev.SecondsRemaining))
	m.level.Set(float64(ev.Level))
}

func (m *Metrics) OnTerminal(ev logic.TerminalEvent) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(string(ev.Status)).Inc()
	if !ev.StartedAt.IsZero() && ev.EndedAt.After(ev.StartedAt) {
		m.sessionDuration.Observe(ev.EndedAt.Sub(ev.StartedAt).Seconds())
	}
	m.armed.Set(0)
	m.secondsRemaining.Set(0)
	m.level.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and observes latency for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
