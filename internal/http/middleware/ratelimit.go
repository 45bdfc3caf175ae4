package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"diary/internal/auth"
	domainerrors "diary/internal/errors"
	"diary/internal/http/response"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit answers 429 once the caller's bucket is empty. Authenticated
// callers are keyed by user id, everyone else by remote address (run RealIP
// first).
func RateLimit(l Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limitKey(r)
			if !l.Allow(key) {
				log.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				response.Error(w, domainerrors.RateLimited("too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request) string {
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatUint(uid, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
