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
	boardsTracerName   = "board-api/api"
	boardsSpanName     = "boards.request"
	boardsEventName    = "boards.request.metrics"
	boardsEventDomain  = "board-api"
	observabilityEvent = "observability.event"
	attrPrefix         = "boards.request."
)

// boardRequestMetrics times the stages of one board request and reports them
// both as a structured log entry and on the request span.
type boardRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	route           string
	start           time.Time
	authDuration    time.Duration
	serviceDuration time.Duration
	encodeDuration  time.Duration
	operation       string
	boardsReturned  int
	changed         bool
	replayed        bool
	errorStage      string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(boardsTracerName).Start(ctx, boardsSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		start:  time.Now(),
	}, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveService(d time.Duration) {
	if d > 0 {
		m.serviceDuration = d
	}
}

func (m *boardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *boardRequestMetrics) SetOperation(op string) { m.operation = op }

func (m *boardRequestMetrics) SetBoardsReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.boardsReturned = n
}

func (m *boardRequestMetrics) SetChanged(changed bool) { m.changed = changed }

func (m *boardRequestMetrics) SetReplayed(replayed bool) { m.replayed = replayed }

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardRequestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int(attrPrefix+"boards_returned", m.boardsReturned),
		attribute.Bool(attrPrefix+"changed", m.changed),
		attribute.Bool(attrPrefix+"replayed", m.replayed),
	}
	if m.operation != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"operation", m.operation))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.serviceDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"service_ms", durationToMillis(m.serviceDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log emits the observability event and ends the span.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", boardsEventName),
			attribute.String("event.domain", boardsEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		defer m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      boardsEventName,
		"event.domain":    boardsEventDomain,
		"attributes":      attrMap,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus follows the OpenTelemetry log severity numbers.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
