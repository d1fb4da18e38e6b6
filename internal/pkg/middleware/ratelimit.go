package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/logger"
)

// RateLimiter aplica uma janela fixa por IP e escopo usando INCR no Redis.
// Se o Redis estiver indisponível a requisição segue.
func RateLimiter(client cache.Client, scope string, limit int, window time.Duration, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			key := fmt.Sprintf("rate-limit:%s:%s", scope, ip)

			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			count, err := client.Incr(ctx, key, window)
			cancel()
			if err != nil {
				log.Warn("Rate limit indisponível, liberando requisição", map[string]interface{}{"scope": scope, "error": err.Error()})
				next.ServeHTTP(w, r)
				return
			}

			remaining := limit - int(count)
			if remaining < 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
