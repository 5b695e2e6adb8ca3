package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "escalation_engine"

// Metrics stores Prometheus collectors used by the webhook and escalation flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	gateDecisionsTotal     *prometheus.CounterVec
	webhookEventsTotal     *prometheus.CounterVec
	persistenceFailures    *prometheus.CounterVec
	identityResolutions    *prometheus.CounterVec
	escalationsTotal       *prometheus.CounterVec
	escalationCallDuration prometheus.Histogram
	deadlineScansTotal     *prometheus.CounterVec
	liveEventsDroppedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		gateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gate_decisions_total",
				Help:      "Webhook gate accept/reject decisions by provider and reason.",
			},
			[]string{"provider", "outcome", "reason"},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_events_total",
				Help:      "Normalized webhook events by provider and kind.",
			},
			[]string{"provider", "kind"},
		),
		persistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "persistence_failures_total",
				Help:      "Store writes that failed on the acknowledged webhook path.",
			},
			[]string{"operation"},
		),
		identityResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "identity_resolutions_total",
				Help:      "Phone identity resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		escalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "escalations_total",
				Help:      "Deadline escalation outcomes per transfer.",
			},
			[]string{"outcome"},
		),
		escalationCallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "escalation_call_duration_seconds",
				Help:      "Voice flow API call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		deadlineScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deadline_scans_total",
				Help:      "Deadline scan runs by final status.",
			},
			[]string{"status"},
		),
		liveEventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "live_events_dropped_total",
				Help:      "Live message events dropped because a subscriber was full.",
			},
			[]string{"subscriber"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.gateDecisionsTotal,
		m.webhookEventsTotal,
		m.persistenceFailures,
		m.identityResolutions,
		m.escalationsTotal,
		m.escalationCallDuration,
		m.deadlineScansTotal,
		m.liveEventsDroppedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncGateDecision(provider string, outcome string, reason string) {
	if m == nil {
		return
	}
	m.gateDecisionsTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncWebhookEvent(provider string, kind string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncPersistenceFailure(operation string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) IncIdentityResolution(outcome string) {
	if m == nil {
		return
	}
	m.identityResolutions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveEscalationCall(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.escalationCallDuration.Observe(seconds)
}

func (m *Metrics) IncDeadlineScan(status string) {
	if m == nil {
		return
	}
	m.deadlineScansTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncLiveEventDropped(subscriber string) {
	if m == nil {
		return
	}
	m.liveEventsDroppedTotal.WithLabelValues(normalizeLabel(subscriber)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
