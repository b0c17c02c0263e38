package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeFor collapses the id segment of /v1/voice/sessions/{id}/... so span
// names and metric attributes keep a bounded cardinality, and returns the
// session id when the path carries one.
func routeFor(path string) (route, sessionID string) {
	const prefix = "/v1/voice/sessions/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return path, ""
	}
	id, op, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return path, ""
	}
	return prefix + "{id}/" + op, id
}

// Middleware instruments the ops listener: the health probe, the session
// control and transcript endpoints, search, and the metrics scrape.
//
// Each request gets a server span joined to incoming W3C trace context, an
// X-Correlation-ID response header derived from the trace id, a duration
// sample on [Metrics.HTTPRequestDuration] and a completion log. Requests for
// a specific voice session carry its id on the span and the log line. The
// health probe and the metrics scrape log at debug level; a tight poll loop
// must not drown the session operations in the log.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route, sessionID := routeFor(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			spanAttrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			}
			if sessionID != "" {
				spanAttrs = append(spanAttrs, attribute.String("voice.session_id", sessionID))
			}
			ctx, span := StartSpan(ctx, "ops "+r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(spanAttrs...),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))

			level := slog.LevelInfo
			if route == "/health" || route == "/metrics" {
				level = slog.LevelDebug
			}
			logAttrs := []slog.Attr{
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", duration),
			}
			if sessionID != "" {
				logAttrs = append(logAttrs, slog.String("session_id", sessionID))
			}
			slog.LogAttrs(ctx, level, "ops request", logAttrs...)
		})
	}
}
