package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"savingsgame/observability"
)

var (
	latencyOnce sync.Once
	latency     metric.Float64Histogram
)

// requestLatency resolves the OTLP histogram against the global meter
// provider. The provider is only installed once telemetry is initialised, so
// the lookup is deferred to the first request.
func requestLatency() metric.Float64Histogram {
	latencyOnce.Do(func() {
		h, err := otel.Meter("savingsgame/gamed").Float64Histogram("gamed.request.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Latency of gamed HTTP requests."))
		if err != nil {
			slog.Default().Warn("register request histogram", slog.Any("error", err))
			return
		}
		latency = h
	})
	return latency
}

// Observe records latency and outcome for route, annotates the active span
// and writes one access log line per request.
func Observe(route string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(
				attribute.String("gamed.route", route),
				attribute.Int("http.status_code", recorder.status),
			)
			observability.API().Observe(route, recorder.status, elapsed)
			if h := requestLatency(); h != nil {
				h.Record(r.Context(), elapsed.Seconds(), metric.WithAttributes(
					attribute.String("route", route),
					attribute.Int("status", recorder.status)))
			}
			logger.Info("request served",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", recorder.status),
				slog.String("request_id", GetRequestID(r.Context())),
				slog.Duration("elapsed", elapsed))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
