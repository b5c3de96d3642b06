package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Observer получает итог каждого запроса (реализуется internal/metrics).
type Observer interface {
	ObserveHTTP(method, route string, status int, dur time.Duration)
}

// Metrics учитывает запросы по шаблону маршрута chi, а не по сырому пути:
// /auth/sessions/{sessionId} — одна серия вне зависимости от id.
func Metrics(o Observer) Middleware {
	return func(next http.Handler) http.Handler {
		if o == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}

			o.ObserveHTTP(r.Method, route, sw.code(), time.Since(start))
		})
	}
}
