//go:generate mockgen -destination=../../mocks/storage_mock.go -package=mocks github.com/pribylovaa/go-services-marketplace/internal/storage Storage

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
)

var (
	// ErrNotFound — пользователь не найден.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/mobile/id).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
// Сессии хранятся внутри пользователя и сохраняются вместе с ним.
type UserStorage interface {
	// CreateUser создаёт нового пользователя. Пользователь без e-mail и телефона
	// отклоняется с models.ErrNoContact.
	CreateUser(ctx context.Context, user *models.User) error
	// SaveUser атомарно перезаписывает пользователя целиком, включая список сессий.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по e-mail (в нижнем регистре).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByMobile находит пользователя по номеру телефона.
	UserByMobile(ctx context.Context, mobile string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionStorage — фоновое обслуживание сессий.
type SessionStorage interface {
	// DeleteExpiredSessions удаляет у всех пользователей сессии с expires_at <= now
	// и возвращает число удалённых сессий.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	SessionStorage
	Close()
}
