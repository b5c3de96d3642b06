package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/pkg/log"
	"github.com/pribylovaa/go-services-marketplace/internal/pkg/redact"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
)

// RegisterInput — данные регистрации по e-mail.
type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// OTPLoginInput — вход по номеру телефона и одноразовому коду.
type OTPLoginInput struct {
	Mobile     string
	OTP        string
	Role       string
	DeviceInfo string
	UserAgent  string
}

// EmailLoginInput — вход по e-mail и паролю.
type EmailLoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	UserAgent  string
}

// AuthResult — итог успешной аутентификации.
// Tokens.RefreshToken пуст после регистрации: сессия создаётся только при входе.
type AuthResult struct {
	User    *models.User
	Tokens  models.TokenPair
	Session *models.SessionInfo
}

// Register регистрирует пользователя по e-mail и паролю и выдаёт только access-токен.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	const op = "service.auth.Register"

	lg := log.From(ctx)

	if in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.validatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role, err := s.resolveRole(in.Role, models.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, email)
	if err == nil {
		s.events.AuthEvent("register", "conflict")
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.events.AuthEvent("register", "conflict")
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, accessExp, err := s.tokens.SignAccess(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
		slog.String("role", string(role)),
	)
	s.events.AuthEvent("register", "success")

	return &AuthResult{
		User: user,
		Tokens: models.TokenPair{
			AccessToken:     access,
			AccessExpiresAt: accessExp,
		},
	}, nil
}

// RequestOTP выпускает одноразовый код для номера телефона.
func (s *Service) RequestOTP(ctx context.Context, mobile string) (time.Time, error) {
	const op = "service.auth.RequestOTP"

	if mobile == "" {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	m, err := validateMobile(mobile)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	exp, err := s.otp.Issue(ctx, m)
	if err != nil {
		log.From(ctx).Warn("otp_issue_failed",
			slog.String("op", op),
			slog.String("mobile", redact.Mobile(m)),
			slog.String("err", err.Error()),
		)
		s.events.AuthEvent("otp_request", "failure")
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	s.events.AuthEvent("otp_request", "success")

	return exp, nil
}

// Login — вход по телефону и OTP. Неизвестный номер регистрируется
// с запрошенной ролью (по умолчанию worker); для существующего пользователя
// запрошенная роль игнорируется.
func (s *Service) Login(ctx context.Context, in OTPLoginInput) (*AuthResult, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	if in.Mobile == "" || in.OTP == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	mobile, err := validateMobile(in.Mobile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.otp.Verify(ctx, mobile, in.OTP)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		lg.Info("login_invalid_otp", slog.String("mobile", redact.Mobile(mobile)))
		s.events.AuthEvent("login_otp", "invalid_otp")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidOTP)
	}

	user, err := s.findOrCreateByMobile(ctx, mobile, in.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.establishSession(ctx, user, DeviceInfo(in.DeviceInfo, in.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("login_success",
		slog.String("method", "otp"),
		slog.String("user_id", user.ID.String()),
		slog.String("mobile", redact.Mobile(mobile)),
		slog.String("role", string(user.Role)),
	)
	s.events.AuthEvent("login_otp", "success")

	return res, nil
}

func (s *Service) findOrCreateByMobile(ctx context.Context, mobile, requestedRole string) (*models.User, error) {
	const op = "service.auth.findOrCreateByMobile"

	user, err := s.storage.UserByMobile(ctx, mobile)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role, err := s.resolveRole(requestedRole, models.RoleWorker)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user = &models.User{
		ID:           uuid.New(),
		Mobile:       mobile,
		Role:         role,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		// Параллельный первый вход с тем же номером: берём созданную запись.
		user, err = s.storage.UserByMobile(ctx, mobile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return user, nil
	}

	log.From(ctx).Info("user_created_by_mobile",
		slog.String("user_id", user.ID.String()),
		slog.String("mobile", redact.Mobile(mobile)),
		slog.String("role", string(role)),
	)

	return user, nil
}

// EmailLogin — вход по e-mail и паролю. Аккаунты без пароля отклоняются
// с ErrMobileLoginOnly.
func (s *Service) EmailLogin(ctx context.Context, in EmailLoginInput) (*AuthResult, error) {
	const op = "service.auth.EmailLogin"

	lg := log.From(ctx)

	if in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	email := normalizeEmail(in.Email)

	user, err := s.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("login_unknown_email", slog.String("email", redact.Email(email)))
			s.events.AuthEvent("login_email", "invalid_credentials")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.HasPassword() {
		s.events.AuthEvent("login_email", "mobile_only")
		return nil, fmt.Errorf("%s: %w", op, ErrMobileLoginOnly)
	}

	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		lg.Info("login_bad_password", slog.String("user_id", user.ID.String()))
		s.events.AuthEvent("login_email", "invalid_credentials")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	res, err := s.establishSession(ctx, user, DeviceInfo(in.DeviceInfo, in.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("login_success",
		slog.String("method", "email"),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
		slog.String("role", string(user.Role)),
	)
	s.events.AuthEvent("login_email", "success")

	return res, nil
}

// establishSession — общий шаг обоих способов входа: выпускает пару токенов,
// добавляет сессию с учётом лимита, обновляет last-login и сохраняет пользователя.
func (s *Service) establishSession(ctx context.Context, user *models.User, deviceInfo string) (*AuthResult, error) {
	const op = "service.auth.establishSession"

	now := s.now().UTC()

	rid, err := token.GenRefreshID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, _, err := s.tokens.SignRefresh(user.ID, rid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, accessExp, err := s.tokens.SignAccess(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	before := len(user.Sessions)
	sess := user.AddSession(deviceInfo, token.HashRefreshID(rid), s.tokens.RefreshTTL(), s.cfg.MaxSessions, now)
	if evicted := before + 1 - len(user.Sessions); evicted > 0 {
		log.From(ctx).Debug("sessions_evicted",
			slog.String("user_id", user.ID.String()),
			slog.Int("count", evicted),
		)
	}

	user.LastLoginAt = &now
	user.UpdatedAt = now

	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	infos := models.SessionList{sess}.Infos()

	return &AuthResult{
		User: user,
		Tokens: models.TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: sess.ExpiresAt,
		},
		Session: &infos[0],
	}, nil
}

// Refresh проверяет refresh-токен и ротирует сессию: новый rid, новый хэш,
// last-used = now. Абсолютный срок сессии не продлевается.
//
// Предъявление уже ротированного токена даёт ErrSessionRevoked: его хэша
// больше нет ни в одной сессии.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	const op = "service.auth.Refresh"

	lg := log.From(ctx)

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	payload, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		lg.Info("refresh_token_invalid", slog.String("err", err.Error()))
		s.events.AuthEvent("refresh", "invalid_token")
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidRefreshToken, err)
	}

	user, err := s.storage.UserByID(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash := token.HashRefreshID(payload.RID)
	sess := user.FindSessionByHash(hash)
	if sess == nil {
		lg.Info("refresh_session_not_found", slog.String("user_id", user.ID.String()))
		s.events.AuthEvent("refresh", "session_not_found")
		return nil, fmt.Errorf("%s: %w", op, ErrSessionRevoked)
	}

	now := s.now().UTC()

	if sess.Expired(now) {
		user.RemoveSession(hash)
		user.UpdatedAt = now
		if err := s.storage.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Info("refresh_session_expired", slog.String("user_id", user.ID.String()))
		s.events.AuthEvent("refresh", "session_expired")
		return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	newRID, err := token.GenRefreshID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, _, err := s.tokens.SignRefresh(user.ID, newRID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, accessExp, err := s.tokens.SignAccess(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.RotateSession(sess, token.HashRefreshID(newRID), now)
	expiresAt := sess.ExpiresAt
	infos := models.SessionList{*sess}.Infos()

	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Debug("refresh_rotated", slog.String("user_id", user.ID.String()))
	s.events.AuthEvent("refresh", "success")

	return &AuthResult{
		User: user,
		Tokens: models.TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: expiresAt,
		},
		Session: &infos[0],
	}, nil
}

// Logout удаляет сессию, к которой относится refresh-токен.
// Отсутствующий, невалидный или уже отозванный токен не считается ошибкой;
// ошибка возвращается только при сбое хранилища.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	if refreshToken == "" {
		return nil
	}

	payload, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		lg.Debug("logout_token_ignored", slog.String("err", err.Error()))
		return nil
	}

	user, err := s.storage.UserByID(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.RemoveSession(token.HashRefreshID(payload.RID)) {
		return nil
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("logout", slog.String("user_id", user.ID.String()))
	s.events.AuthEvent("logout", "success")

	return nil
}

// Me возвращает пользователя по ID.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.Me"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Sessions возвращает метаданные сессий пользователя (без хэшей).
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]models.SessionInfo, error) {
	const op = "service.auth.Sessions"

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.ListSessions(), nil
}

// RevokeSession удаляет одну сессию пользователя по её ID.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "service.auth.RevokeSession"

	user, err := s.Me(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !user.RemoveSessionByID(sessionID) {
		return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("session_revoked",
		slog.String("user_id", user.ID.String()),
		slog.String("session_id", sessionID.String()),
	)
	s.events.AuthEvent("revoke_session", "success")

	return nil
}

// CleanupExpiredSessions удаляет истёкшие сессии у всех пользователей.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	const op = "service.auth.CleanupExpiredSessions"

	n, err := s.storage.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
