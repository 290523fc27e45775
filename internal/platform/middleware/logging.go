package middleware

import (
	"net/http"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging writes one line per request. Query strings are left out since join
// links carry share tokens.
func Logging(log waLog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Infof("%s %s %d %s", r.Method, redactPath(r.URL.Path), rec.status, time.Since(start))
		})
	}
}

// redactPath hides the share token segment of /join/{token} paths.
func redactPath(path string) string {
	const prefix = "/join/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return path
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return prefix + "***" + rest[i:]
		}
	}
	return prefix + "***"
}
