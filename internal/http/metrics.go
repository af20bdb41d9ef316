package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/http"

// Keys under which handlers leave details for the metrics middleware.
const (
	errorKindKey = "fixdesk.error_kind"
	turnStepKey  = "fixdesk.turn_step"
)

// HTTPMetrics records API traffic: request counts and latency per route,
// failed requests by error kind and the step each conversation turn ends in.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	turns    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the API instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"fixdesk.http.requests_total",
		metric.WithDescription("API requests by method, route and status class (2xx, 4xx, 5xx)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Turns wait on the session lock and on AI calls, hence the long tail.
	m.duration, err = m.meter.Float64Histogram(
		"fixdesk.http.request_duration_seconds",
		metric.WithDescription("API request latency by method and route"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"fixdesk.http.failures_total",
		metric.WithDescription("Failed API requests by route and error kind"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create failures counter", zap.Error(err))
	}

	m.turns, err = m.meter.Int64Counter(
		"fixdesk.http.turns_total",
		metric.WithDescription("Conversation turns answered over HTTP by the step they ended in"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		m.logger.Warn("failed to create turns counter", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"fixdesk.http.in_flight_requests",
		metric.WithDescription("API requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create in-flight gauge", zap.Error(err))
	}
}

// MetricsMiddleware records every request once the handler returns.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			route := normalizePath(c.Path())
			method := c.Request().Method
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			if m.requests != nil {
				m.requests.Add(ctx, 1, metric.WithAttributes(
					attribute.String("method", method),
					attribute.String("route", route),
					attribute.String("status_class", statusClass(status)),
				))
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
					attribute.String("method", method),
					attribute.String("route", route),
				))
			}
			if kind, ok := c.Get(errorKindKey).(errs.Kind); ok && m.failures != nil {
				m.failures.Add(ctx, 1, metric.WithAttributes(
					attribute.String("route", route),
					attribute.String("kind", string(kind)),
				))
			}
			if step, ok := c.Get(turnStepKey).(conversation.Step); ok && m.turns != nil {
				m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))
			}
			return err
		}
	}
}

// normalizePath keeps the route template (/api/v1/sessions/:id) as the
// label. Unmatched requests have no template and share one label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
