package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName             = "breakdown-api/api"
	requestSpanName        = "tasks.request"
	observabilityEventName = "observability.event"
	requestEventName       = "tasks.request.completed"
	requestEventDomain     = "breakdown"
	attrPrefix             = "breakdown.request."
)

type stageDuration struct {
	name     string
	duration time.Duration
}

// requestMetrics collects timings for one request and emits them as a single
// structured log entry mirrored onto the request span.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	route      string
	method     string
	start      time.Time
	stages     []stageDuration
	errorStage string
	attrs      []attribute.KeyValue
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
	}, ctx
}

// Observe records how long a named stage took.
func (m *requestMetrics) Observe(stage string, duration time.Duration) {
	if duration <= 0 || stage == "" {
		return
	}
	m.stages = append(m.stages, stageDuration{name: stage, duration: duration})
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) SetInt(key string, v int) {
	m.attrs = append(m.attrs, attribute.Int(attrPrefix+key, v))
}

func (m *requestMetrics) SetString(key, v string) {
	m.attrs = append(m.attrs, attribute.String(attrPrefix+key, v))
}

// Log ends the span and writes the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
	}
	for _, s := range m.stages {
		attrs = append(attrs, attribute.Float64(attrPrefix+s.name+"_ms", durationToMillis(s.duration)))
	}
	attrs = append(attrs, m.attrs...)
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent(observabilityEventName, trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), observabilityEventName)
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError, status == 0 && err != nil:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(number int) log.Level {
	switch {
	case number >= 17:
		return log.ErrorLevel
	case number >= 13:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
