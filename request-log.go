package alwaysstatic

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/woodchen-ink/go-web-utils/iputil"
)

// RequestLogger returns a middleware that puts a request-scoped logger with a
// request id into the request context and logs one line per response.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(logger)
	withID := hlog.RequestIDHandler("req", "X-Request-Id")
	access := hlog.AccessHandler(logRequest)
	return func(next http.Handler) http.Handler {
		return withLogger(withID(access(next)))
	}
}

func logRequest(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", iputil.GetClientIP(r)).
		Str("encoding", r.Header.Get("Accept-Encoding")).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Sending response to client")
}
