package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// statusRecorder wraps http.ResponseWriter to capture the status code and
// response size for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// RequestLogger logs one line per request: method, path, status, duration,
// and response size. 5xx log at error level, 4xx at warn. Paths listed in
// skip (health probes, metrics scrapes) are not logged. Token-carrying path
// segments are masked before logging.
func RequestLogger(log zerolog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			event := log.Info()
			if rec.status >= http.StatusInternalServerError {
				event = log.Error()
			} else if rec.status >= http.StatusBadRequest {
				event = log.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", sanitizePath(r.URL.Path)).
				Str("remoteAddr", r.RemoteAddr).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Int64("bytes", rec.bytes).
				Msg("http request")
		})
	}
}

// sanitizePath masks the segment following a token-carrying one so that
// verification links never land in the log.
func sanitizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "verify-email" && i+1 < len(parts) && parts[i+1] != "" {
			parts[i+1] = "***"
		}
	}
	return strings.Join(parts, "/")
}

// Recoverer converts a handler panic into a sanitized 500 and logs the
// stack. Mounted inside RequestLogger so the 500 appears in the request log.
func Recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("method", r.Method).
						Str("path", sanitizePath(r.URL.Path)).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					serverError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
