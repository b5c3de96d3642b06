package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/pribylovaa/go-services-marketplace/internal/telemetry"
	apierrors "github.com/pribylovaa/go-services-marketplace/internal/transport/http/errors"
	"github.com/pribylovaa/go-services-marketplace/internal/transport/http/handlers"
	"github.com/pribylovaa/go-services-marketplace/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.

	// Debug добавляет текст внутренних ошибок в ответы 500 (local/dev).
	Debug bool

	Cookie         handlers.Cookie
	AllowedOrigins []string

	// RateLimit запросов за RateWindow с одного IP на эндпойнты с учётными данными.
	// 0 отключает ограничение.
	RateLimit  int
	RateWindow time.Duration

	// Metrics — приёмник HTTP-метрик; nil отключает учёт.
	Metrics middleware.Observer
	// TraceOperation — имя серверного спана; пустое отключает otelhttp.
	TraceOperation string

	// Now — источник времени для Max-Age cookie (тесты).
	Now func() time.Time
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.AuthService, tokens middleware.AccessVerifier, opts Options) http.Handler {
	root := chi.NewRouter()

	if opts.TraceOperation != "" {
		root.Use(telemetry.Middleware(opts.TraceOperation))
	}

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Recover(),            // паника -> 500, запись лога уже со статусом
		middleware.Metrics(opts.Metrics),
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders:   []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	if opts.Debug {
		root.Use(debugErrors)
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	root.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, r, apierrors.ErrRouteNotFound)
	})
	root.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, r, apierrors.ErrMethodNotAllowed)
	})

	h := handlers.New(svc, opts.Cookie)
	if opts.Now != nil {
		h.SetClock(opts.Now)
	}

	limiter := func(next http.Handler) http.Handler { return next }
	if opts.RateLimit > 0 && opts.RateWindow > 0 {
		limiter = httprate.Limit(opts.RateLimit, opts.RateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				apierrors.WriteError(w, r, apierrors.ErrRateLimited)
			}),
		)
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, tokens, limiter)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, tokens, limiter)
	return root
}

// registerRoutes — единая точка регистрации REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, tokens middleware.AccessVerifier, limiter func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		// Публичные, с учётными данными — под rate limit.
		r.Group(func(r chi.Router) {
			r.Use(limiter)
			r.Post("/register", h.Register)
			r.Post("/otp", h.RequestOTP)
			r.Post("/login", h.Login)
			r.Post("/email-login", h.EmailLogin)
			r.Post("/refresh", h.Refresh)
		})

		r.Post("/logout", h.Logout)

		// Требуют access-токен.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(tokens))
			r.Get("/me", h.Me)
			r.Get("/sessions", h.Sessions)
			r.Delete("/sessions/{sessionId}", h.RevokeSession)
		})
	})
}

func debugErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(apierrors.WithDebug(r.Context())))
	})
}
