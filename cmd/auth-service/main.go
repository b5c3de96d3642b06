package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-services-marketplace/internal/config"
	"github.com/pribylovaa/go-services-marketplace/internal/metrics"
	"github.com/pribylovaa/go-services-marketplace/internal/otp"
	"github.com/pribylovaa/go-services-marketplace/internal/password"
	"github.com/pribylovaa/go-services-marketplace/internal/pkg/log"
	"github.com/pribylovaa/go-services-marketplace/internal/service"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
	"github.com/pribylovaa/go-services-marketplace/internal/storage/memory"
	"github.com/pribylovaa/go-services-marketplace/internal/storage/mongo"
	"github.com/pribylovaa/go-services-marketplace/internal/storage/postgres"
	"github.com/pribylovaa/go-services-marketplace/internal/telemetry"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
	authhttp "github.com/pribylovaa/go-services-marketplace/internal/transport/http"
	"github.com/pribylovaa/go-services-marketplace/internal/transport/http/handlers"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	lg := setupLogger(cfg.Env)
	slog.SetDefault(lg)
	lg.Info("starting auth-service", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	shutdownTracing, err := telemetry.Init(rootCtx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		lg.Error("telemetry_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg)
	dbCancel()
	if err != nil {
		lg.Error("storage_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}
	lg.Info("storage_connected", slog.String("driver", cfg.DB.Driver))

	otpProvider, closeOTP, err := openOTP(rootCtx, cfg, lg)
	if err != nil {
		lg.Error("otp_init_failed", slog.String("mode", cfg.OTP.Mode), slog.String("err", err.Error()))
		str.Close()
		os.Exit(1)
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
	})
	if err != nil {
		lg.Error("token_manager_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		lg.Error("password_hasher_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()

	// Сервис.
	svc := service.New(str, tokens, hasher, otpProvider, cfg.Auth)
	svc.SetEventRecorder(m)
	lg.Info("service_initialized")

	apiHandler := authhttp.NewRouter(svc, tokens, authhttp.Options{
		Logger:   lg,
		Timeout:  cfg.Timeouts.Service,
		BasePath: cfg.HTTP.BasePath,
		Debug:    cfg.IsDevelopment(),
		Cookie: handlers.Cookie{
			Name:   cfg.Cookie.Name,
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Env == config.EnvProd,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
		Metrics:        m,
		TraceOperation: cfg.Telemetry.ServiceName,
	})

	var ready int32 // 0 — not ready; 1 — ready

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	opsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	opsMux.Handle("/metrics", m.Handler())

	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           opsMux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           apiHandler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	go func() {
		lg.Info("ops_listen_start", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Фоновая очистка просроченных сессий.
	startSessionJanitor(rootCtx, svc, lg, cfg.Auth.SessionCleanupInterval)

	serveErrCh := make(chan error, 1)
	go func() {
		lg.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		lg.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			lg.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		lg.Info("http_stopped")
	}

	_ = opsSrv.Shutdown(shutdownCtx)

	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("telemetry_shutdown_failed", slog.String("err", err.Error()))
	}

	closeOTP()
	str.Close()

	lg.Info("service_stopped")
}

// openStorage выбирает реализацию хранилища по cfg.DB.Driver.
// Для postgres перед стартом применяются встроенные миграции.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.DB.Driver {
	case config.DriverMongo:
		st, err := mongo.New(ctx, cfg.DB.URL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverPostgres:
		if err := postgres.Migrate(cfg.DB.URL, postgres.MigrateUp); err != nil {
			return nil, err
		}
		st, err := postgres.New(ctx, cfg.DB.URL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

// openOTP собирает провайдер одноразовых кодов. Возвращаемая функция
// освобождает ресурсы провайдера.
func openOTP(ctx context.Context, cfg *config.Config, lg *slog.Logger) (otp.Provider, func(), error) {
	switch cfg.OTP.Mode {
	case config.OTPModeStatic:
		lg.Warn("otp_static_mode", slog.String("hint", "every mobile accepts the configured static code"))
		return otp.NewStatic(cfg.OTP.StaticCode, cfg.OTP.TTL), func() {}, nil

	case config.OTPModeRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}

		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}

		var sender otp.Sender = otp.LogSender{}
		if cfg.OTP.SenderURL != "" {
			sender = otp.NewWebhookSender(cfg.OTP.SenderURL, cfg.OTP.SenderTimeout)
		}

		provider := otp.NewRedis(rdb, sender, otp.RedisConfig{
			Prefix:         cfg.Redis.Prefix,
			Length:         cfg.OTP.Length,
			TTL:            cfg.OTP.TTL,
			MaxAttempts:    cfg.OTP.MaxAttempts,
			ResendCooldown: cfg.OTP.ResendCooldown,
		})

		return provider, func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown otp mode %q", cfg.OTP.Mode)
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var lg *slog.Logger

	switch env {
	case config.EnvLocal:
		lg = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		lg = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		lg = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		lg = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return lg
}

// startSessionJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные сессии через service.CleanupExpiredSessions.
func startSessionJanitor(ctx context.Context, svc *service.Service, lg *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	ctx = log.Into(ctx, lg.With(slog.String("component", "session_janitor")))

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := svc.CleanupExpiredSessions(ctx)
				if err != nil {
					log.From(ctx).Error("session_cleanup_failed", slog.String("err", err.Error()))
					continue
				}
				log.From(ctx).Debug("session_cleanup_done", slog.Int64("removed", n))
			}
		}
	}()
}
