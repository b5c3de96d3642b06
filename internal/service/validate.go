package service

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/password"
)

const (
	// UnknownDevice — описание устройства, если клиент ничего не прислал.
	UnknownDevice = "Unknown device"
	// maxDeviceInfo — предел длины описания устройства (в рунах).
	maxDeviceInfo = 256
)

var (
	emailRe  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobileRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// normalizeEmail приводит e-mail к нижнему регистру без пробелов по краям.
func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// validateEmail проверяет формат e-mail и возвращает нормализованное значение.
func validateEmail(raw string) (string, error) {
	const op = "service.validateEmail"

	email := normalizeEmail(raw)
	if email == "" || !emailRe.MatchString(email) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return email, nil
}

// validateMobile проверяет номер: необязательный «+» и 7–15 цифр.
func validateMobile(raw string) (string, error) {
	const op = "service.validateMobile"

	mobile := strings.TrimSpace(raw)
	if !mobileRe.MatchString(mobile) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidMobile)
	}

	return mobile, nil
}

// validatePassword проверяет минимальную длину и, если включено, полную политику.
func (s *Service) validatePassword(pw string) error {
	const op = "service.validatePassword"

	if utf8.RuneCountInString(pw) < password.MinLength {
		return fmt.Errorf("%s: %w", op, ErrPasswordTooShort)
	}

	if s.cfg.RequireStrongPassword {
		if res := password.ValidateStrength(pw); !res.Valid {
			return fmt.Errorf("%s: %w", op, &PasswordPolicyError{Problems: res.Errors})
		}
	}

	return nil
}

// resolveRole разбирает запрошенную роль. Пустая строка — роль по умолчанию.
func (s *Service) resolveRole(raw string, def models.Role) (models.Role, error) {
	const op = "service.resolveRole"

	if strings.TrimSpace(raw) == "" {
		return def, nil
	}

	r, ok := models.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrRoleNotAllowed)
	}

	if _, allowed := s.selfRoles[r]; !allowed {
		return "", fmt.Errorf("%s: %w", op, ErrRoleNotAllowed)
	}

	return r, nil
}

// DeviceInfo выбирает описание устройства: из тела запроса, затем User-Agent,
// затем UnknownDevice. Результат обрезается до maxDeviceInfo рун.
func DeviceInfo(fromBody, userAgent string) string {
	d := strings.TrimSpace(fromBody)
	if d == "" {
		d = strings.TrimSpace(userAgent)
	}
	if d == "" {
		return UnknownDevice
	}

	if utf8.RuneCountInString(d) > maxDeviceInfo {
		d = string([]rune(d)[:maxDeviceInfo])
	}

	return d
}
