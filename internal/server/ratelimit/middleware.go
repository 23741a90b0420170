// Provides response writers that carry rate limit headers.

package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteHeaders writes rate limit headers to the response.
// Headers are written on all responses (both success and 429).
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// responseWriter injects rate limit headers before the response starts.
type responseWriter struct {
	http.ResponseWriter
	result      Result
	wroteHeader bool
}

// NewResponseWriter creates a response writer that injects rate limit headers.
func NewResponseWriter(w http.ResponseWriter, result Result) http.ResponseWriter {
	return &responseWriter{ResponseWriter: w, result: result}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// BuildKey creates a bucket key from a client identifier and tier name.
func BuildKey(identifier, tierName string) string {
	return "ip:" + identifier + ":" + tierName
}
