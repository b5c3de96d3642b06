// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Константы окружений.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Драйверы хранилища пользователей.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Режимы OTP.
const (
	OTPModeStatic = "static"
	OTPModeRedis  = "redis"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv), в том числе из .env.
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Ops       OpsConfig       `yaml:"ops"`
	Auth      AuthConfig      `yaml:"auth"`
	Password  PasswordConfig  `yaml:"password"`
	Cookie    CookieConfig    `yaml:"cookie"`
	OTP       OTPConfig       `yaml:"otp"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// HTTPConfig — публичный API.
type HTTPConfig struct {
	Host              string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port              string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath          string        `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// OpsConfig — служебный HTTP-сервер (livez/healthz/metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"8081"`
}

// Addr возвращает адрес в формате host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов и сессий.
type AuthConfig struct {
	AccessSecret           string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshSecret          string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL         time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL        time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer                 string        `yaml:"issuer" env:"ISSUER" env-default:"worker-app"`
	Audience               []string      `yaml:"audience" env:"AUDIENCE" env-default:"worker-app-users"`
	MaxSessions            int           `yaml:"max_sessions" env:"MAX_SESSIONS" env-default:"5"`
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval" env:"SESSION_CLEANUP_INTERVAL" env-default:"30m"`
	SelfAssignableRoles    []string      `yaml:"self_assignable_roles" env:"SELF_ASSIGNABLE_ROLES" env-default:"user,worker,customer"`
	RequireStrongPassword  bool          `yaml:"require_strong_password" env:"REQUIRE_STRONG_PASSWORD" env-default:"false"`
}

// PasswordConfig — параметры argon2id.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory_kib" env:"PASSWORD_MEMORY_KIB" env-default:"65536"`
	Iterations  uint32 `yaml:"iterations" env:"PASSWORD_ITERATIONS" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"PASSWORD_PARALLELISM" env-default:"4"`
	SaltLength  uint32 `yaml:"salt_length" env:"PASSWORD_SALT_LENGTH" env-default:"16"`
	KeyLength   uint32 `yaml:"key_length" env:"PASSWORD_KEY_LENGTH" env-default:"32"`
}

// CookieConfig — cookie с refresh-токеном.
type CookieConfig struct {
	Name   string `yaml:"name" env:"COOKIE_NAME" env-default:"jid"`
	Domain string `yaml:"domain" env:"COOKIE_DOMAIN"`
}

// OTPConfig — выпуск и проверка одноразовых кодов для входа по телефону.
type OTPConfig struct {
	Mode           string        `yaml:"mode" env:"OTP_MODE" env-default:"static"`
	StaticCode     string        `yaml:"static_code" env:"OTP_STATIC_CODE" env-default:"123456"`
	Length         int           `yaml:"length" env:"OTP_LENGTH" env-default:"6"`
	TTL            time.Duration `yaml:"ttl" env:"OTP_TTL" env-default:"5m"`
	MaxAttempts    int           `yaml:"max_attempts" env:"OTP_MAX_ATTEMPTS" env-default:"5"`
	ResendCooldown time.Duration `yaml:"resend_cooldown" env:"OTP_RESEND_COOLDOWN" env-default:"60s"`
	SenderURL      string        `yaml:"sender_url" env:"OTP_SENDER_URL"`
	SenderTimeout  time.Duration `yaml:"sender_timeout" env:"OTP_SENDER_TIMEOUT" env-default:"10s"`
}

// DBConfig — настройки хранилища пользователей.
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	URL    string `yaml:"db_url" env:"DATABASE_URL"`
}

// RedisConfig — Redis для OTP-кодов.
type RedisConfig struct {
	URL    string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"otp:"`
}

// CORSConfig — разрешённые origin SPA (cookie передаются с credentials).
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000,http://localhost:5173"`
}

// RateLimitConfig — лимит запросов к /auth/* с одного IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"60"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
}

// TelemetryConfig — экспорт трейсов OTLP/HTTP. Пустой endpoint отключает трейсинг.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"auth-service"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// IsDevelopment сообщает, можно ли отдавать клиенту диагностику внутренних ошибок.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvLocal || c.Env == EnvDev
}

// Validate проверяет согласованность значений, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	const op = "config.Validate"

	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth: access and refresh secrets must differ"))
	}

	if c.Auth.MaxSessions <= 0 {
		errs = append(errs, errors.New("auth: max_sessions must be > 0"))
	}

	switch c.DB.Driver {
	case DriverMongo, DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, fmt.Errorf("db: url is required for driver %q", c.DB.Driver))
		}
	case DriverMemory:
		if c.Env == EnvProd {
			errs = append(errs, errors.New("db: memory driver is not allowed in prod"))
		}
	default:
		errs = append(errs, fmt.Errorf("db: unknown driver %q", c.DB.Driver))
	}

	switch c.OTP.Mode {
	case OTPModeStatic:
		if c.Env == EnvProd {
			errs = append(errs, errors.New("otp: static mode is not allowed in prod"))
		}
		if c.OTP.StaticCode == "" {
			errs = append(errs, errors.New("otp: static_code is required in static mode"))
		}
	case OTPModeRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("otp: redis url is required in redis mode"))
		}
		if c.OTP.Length < 4 || c.OTP.Length > 10 {
			errs = append(errs, errors.New("otp: length must be within [4, 10]"))
		}
		if c.OTP.TTL <= 0 || c.OTP.MaxAttempts <= 0 {
			errs = append(errs, errors.New("otp: ttl and max_attempts must be > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("otp: unknown mode %q", c.OTP.Mode))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
// Файл .env (если есть) подгружается в окружение до чтения; уже выставленные
// переменные он не перетирает.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	var (
		out *Config
		err error
	)

	switch {
	case path != "":
		out, err = tryRead(path)
	case os.Getenv("CONFIG_PATH") != "":
		out, err = tryRead(os.Getenv("CONFIG_PATH"))
	default:
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			out, err = tryRead("local.yaml")
			break
		}

		if err = cleanenv.ReadEnv(&cfg); err != nil {
			err = fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
			break
		}
		out = &cfg
	}

	if err != nil {
		return nil, err
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}
