package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/worthrank/pkg/metrics"
)

// Error codes carried in errorResponse.Code and used as metric labels.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeInternal   = "internal_error"
	codeNotReady   = "not_ready"
)

// MetricsMiddleware records request count and latency for endpoint. Failed
// requests are also counted by the error code the handler answered with.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Microseconds())/1000)

		if rec.status < http.StatusBadRequest {
			return
		}
		code := rec.code
		if code == "" {
			code = codeForStatus(rec.status)
		}
		severity := "low"
		if rec.status >= http.StatusInternalServerError {
			severity = "high"
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		metrics.RecordErrorByType(code, severity)
	}
}

// codeForStatus labels failures written without writeError.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return codeNotReady
	case status >= http.StatusInternalServerError:
		return codeInternal
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusBadRequest:
		return codeBadRequest
	default:
		return "client_error"
	}
}

// statusRecorder remembers the status and error code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) recordErrorCode(code string) { r.code = code }

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
