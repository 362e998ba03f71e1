package api

import (
	"fmt"
	"net/http"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[1;32m"
	ansiRed    = "\033[1;31m"
)

// slowRequest marks requests that take longer than a telemetry period.
const slowRequest = 50 * time.Millisecond

// statusRecorder remembers the status written through it. Flush passes
// through so the debug tail stream still works behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func colorStatus(code int) string {
	color := ""
	switch {
	case code >= 400:
		color = ansiRed
	case code >= 300:
		color = ansiYellow
	case code >= 200:
		color = ansiGreen
	}
	if color == "" {
		return fmt.Sprint(code)
	}
	return fmt.Sprintf("%s%d%s", color, code, ansiReset)
}

// LoggingMiddleware logs one line per request with its status and latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		took := time.Since(start)
		slow := ""
		if took > slowRequest {
			slow = " slow"
		}
		logf("[%s] %s %s%s%s %.2fms%s", colorStatus(rec.status), r.Method,
			ansiCyan, r.RequestURI, ansiReset, float64(took.Microseconds())/1000, slow)
	})
}
