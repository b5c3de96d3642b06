package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoContact — у пользователя не задан ни e-mail, ни номер телефона.
// Такая запись отклоняется хранилищем при сохранении.
var ErrNoContact = errors.New("either email or mobile is required")

// User — учётная запись пользователя маркетплейса.
//
// Описание:
//   - Email хранится в нижнем регистре; пустая строка означает «не задан»;
//   - PasswordHash есть только у аккаунтов, созданных через регистрацию по e-mail;
//   - WorkerProfileID — ссылка на профиль исполнителя (пусто, если профиля нет);
//   - Sessions — активные сессии, упорядочены от старой к новой.
type User struct {
	ID              uuid.UUID
	Email           string
	Mobile          string
	PasswordHash    string
	Role            Role
	WorkerProfileID string
	Verified        bool
	RegisteredAt    time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Sessions        SessionList
}

// Validate проверяет инварианты записи перед сохранением.
func (u *User) Validate() error {
	if u.Email == "" && u.Mobile == "" {
		return ErrNoContact
	}

	return nil
}

// HasPassword сообщает, может ли пользователь входить по e-mail и паролю.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// AddSession создаёт новую сессию (created/last-used = now, expires = now+ttl)
// и добавляет её с учётом лимита maxSessions: самые старые вытесняются.
func (u *User) AddSession(deviceInfo, ridHash string, ttl time.Duration, maxSessions int, now time.Time) Session {
	s := Session{
		ID:               uuid.New(),
		DeviceInfo:       deviceInfo,
		RefreshTokenHash: ridHash,
		CreatedAt:        now,
		LastUsedAt:       now,
		ExpiresAt:        now.Add(ttl),
	}
	u.Sessions.InsertWithCap(s, maxSessions)

	return s
}

// FindSessionByHash ищет сессию по хэшу rid.
func (u *User) FindSessionByHash(ridHash string) *Session {
	return u.Sessions.FindByHash(ridHash)
}

// RotateSession заменяет хэш rid и обновляет last-used.
// Абсолютный срок жизни сессии не меняется.
func (u *User) RotateSession(s *Session, newRidHash string, now time.Time) {
	s.RefreshTokenHash = newRidHash
	s.LastUsedAt = now
}

// RemoveSession удаляет сессию по хэшу rid.
func (u *User) RemoveSession(ridHash string) bool {
	return u.Sessions.RemoveByHash(ridHash)
}

// RemoveSessionByID удаляет сессию по её идентификатору.
func (u *User) RemoveSessionByID(id uuid.UUID) bool {
	return u.Sessions.RemoveByID(id)
}

// ListSessions возвращает метаданные сессий без хэшей.
func (u *User) ListSessions() []SessionInfo {
	return u.Sessions.Infos()
}

// Clone возвращает глубокую копию пользователя (вместе с сессиями).
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	cp := *u
	cp.Sessions = u.Sessions.Clone()
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}

	return &cp
}
