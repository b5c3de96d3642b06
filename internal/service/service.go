// service содержит бизнес-логику auth-сервиса маркетплейса:
// регистрацию, вход по телефону+OTP и по e-mail+паролю, ротацию refresh-токенов,
// выход и управление сессиями пользователя.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для конкурентного
//     использования при потокобезопасном хранилище (storage.Storage).
//   - Сессии живут внутри пользователя; каждое изменение — read-modify-write
//     с атомарным сохранением документа целиком (последняя запись выигрывает).
//   - Ошибки возвращаются сентинелами ниже и маппятся транспортом на HTTP-коды.
package service

import (
	"errors"
	"strings"
	"time"

	"github.com/pribylovaa/go-services-marketplace/internal/config"
	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/otp"
	"github.com/pribylovaa/go-services-marketplace/internal/password"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
)

var (
	// ErrMissingCredentials — не передано обязательное поле (email/password, mobile/otp).
	// Транспорт: 400.
	ErrMissingCredentials = errors.New("missing required credentials")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidMobile — номер телефона имеет некорректный формат. Транспорт: 400.
	ErrInvalidMobile = errors.New("invalid mobile number")

	// ErrPasswordTooShort — пароль короче password.MinLength. Транспорт: 400.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")

	// ErrWeakPassword — пароль не проходит политику сложности.
	// Полный список нарушений — в PasswordPolicyError. Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrRoleNotAllowed — запрошенную роль нельзя назначить себе самостоятельно.
	// Транспорт: 400.
	ErrRoleNotAllowed = errors.New("role is not allowed")

	// ErrEmailTaken — e-mail уже занят другим пользователем. Транспорт: 409.
	ErrEmailTaken = errors.New("user already exists with this email")

	// ErrInvalidCredentials — пара e-mail/пароль неверна или пользователь не найден.
	// Транспорт: 401.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrMobileLoginOnly — у аккаунта нет пароля, вход только по телефону. Транспорт: 401.
	ErrMobileLoginOnly = errors.New("this account uses mobile login")

	// ErrInvalidOTP — код неверен, истёк или уже использован. Транспорт: 401.
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrNoRefreshToken — refresh-токен не передан. Транспорт: 401 NO_REFRESH_TOKEN.
	ErrNoRefreshToken = errors.New("no refresh token provided")

	// ErrInvalidRefreshToken — подпись/claims/срок refresh-токена не прошли проверку.
	// Транспорт: 401 INVALID_REFRESH_TOKEN.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

	// ErrSessionRevoked — сессии с хэшем rid нет: токен отозван или уже ротирован.
	// Транспорт: 401.
	ErrSessionRevoked = errors.New("session not found")

	// ErrSessionExpired — абсолютный срок сессии истёк. Транспорт: 401.
	ErrSessionExpired = errors.New("session expired")

	// ErrUserNotFound — пользователь не найден. Транспорт: 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound — у пользователя нет сессии с таким ID. Транспорт: 404.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOTPCooldown — код запрошен повторно раньше окончания паузы. Транспорт: 429.
	ErrOTPCooldown = otp.ErrCooldown

	// ErrOTPUnavailable — хранилище кодов или канал доставки недоступны. Транспорт: 503.
	ErrOTPUnavailable = otp.ErrUnavailable
)

// PasswordPolicyError перечисляет все нарушенные правила сложности пароля.
type PasswordPolicyError struct {
	Problems []string
}

func (e *PasswordPolicyError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *PasswordPolicyError) Unwrap() error { return ErrWeakPassword }

// EventRecorder получает исходы операций аутентификации (для метрик).
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage   storage.Storage
	tokens    *token.Manager
	hasher    *password.Hasher
	otp       otp.Provider
	cfg       config.AuthConfig
	selfRoles map[models.Role]struct{}
	events    EventRecorder
	now       func() time.Time
}

// New создаёт новый экземпляр Service.
// Роли из cfg.SelfAssignableRoles, которые не удаётся разобрать, игнорируются;
// admin никогда не назначается самостоятельно.
func New(
	st storage.Storage,
	tokens *token.Manager,
	hasher *password.Hasher,
	otpProvider otp.Provider,
	cfg config.AuthConfig,
) *Service {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = models.DefaultMaxSessions
	}

	roles := make(map[models.Role]struct{}, len(cfg.SelfAssignableRoles))
	for _, raw := range cfg.SelfAssignableRoles {
		if r, ok := models.ParseRole(raw); ok && r != models.RoleAdmin {
			roles[r] = struct{}{}
		}
	}

	return &Service{
		storage:   st,
		tokens:    tokens,
		hasher:    hasher,
		otp:       otpProvider,
		cfg:       cfg,
		selfRoles: roles,
		events:    nopRecorder{},
		now:       time.Now,
	}
}

// SetClock подменяет источник времени (для тестов истечения сессий).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetEventRecorder подключает учёт событий аутентификации.
func (s *Service) SetEventRecorder(r EventRecorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.events = r
}

// RefreshTTL — срок жизни сессии и refresh-токена.
func (s *Service) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}
