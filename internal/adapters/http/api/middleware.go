package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/rivalry/pkg/metrics"
)

// errorClass labels a failed response for the error metrics.
type errorClass struct {
	kind     string
	severity string
}

// classify maps a status code to its error class. Codes below 400 are not errors.
func classify(status int) (errorClass, bool) {
	switch {
	case status < http.StatusBadRequest:
		return errorClass{}, false
	case status == http.StatusNotFound:
		return errorClass{kind: "not_found", severity: "low"}, true
	case status == http.StatusTooManyRequests:
		return errorClass{kind: "rate_limit", severity: "medium"}, true
	case status == http.StatusGatewayTimeout:
		return errorClass{kind: "timeout", severity: "high"}, true
	case status >= http.StatusInternalServerError:
		return errorClass{kind: "server_error", severity: "high"}, true
	default:
		return errorClass{kind: "client_error", severity: "medium"}, true
	}
}

// MetricsMiddleware records request count, latency and error class per endpoint.
// Streams are timed until the handler returns, so /forecast latency covers
// the whole computation.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		elapsed := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(rec.status())
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, elapsed)

		if class, failed := classify(rec.status()); failed {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class.kind)
			metrics.RecordErrorByType(class.kind, class.severity)
			metrics.RecordErrorLatency("http", class.kind, elapsed)
		}
	}
}

// statusRecorder remembers the first status written through it.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
