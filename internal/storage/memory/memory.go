// memory — хранилище пользователей в памяти процесса.
// Используется для локального запуска и HTTP-тестов.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
)

// Storage хранит копии пользователей; наружу всегда отдаются копии.
type Storage struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
	byMobile map[string]uuid.UUID
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]uuid.UUID),
		byMobile: make(map[string]uuid.UUID),
	}
}

// CreateUser создаёт нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.CreateUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if err := s.checkUniqueLocked(user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.putLocked(user.Clone())

	return nil
}

// SaveUser перезаписывает пользователя целиком.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err := s.checkUniqueLocked(user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	delete(s.byEmail, prev.Email)
	delete(s.byMobile, prev.Mobile)
	s.putLocked(user.Clone())

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.lookup(ctx, "storage.memory.UserByEmail", s.byEmail, email)
}

// UserByMobile находит пользователя по номеру телефона.
func (s *Storage) UserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return s.lookup(ctx, "storage.memory.UserByMobile", s.byMobile, mobile)
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return u.Clone(), nil
}

// DeleteExpiredSessions удаляет истёкшие сессии у всех пользователей.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.DeleteExpiredSessions"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, u := range s.users {
		total += int64(u.Sessions.RemoveExpired(now))
	}

	return total, nil
}

// Close ничего не делает.
func (s *Storage) Close() {}

func (s *Storage) lookup(ctx context.Context, op string, index map[string]uuid.UUID, key string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	id, ok := index[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.users[id].Clone(), nil
}

func (s *Storage) checkUniqueLocked(user *models.User) error {
	if user.Email != "" {
		if id, ok := s.byEmail[user.Email]; ok && id != user.ID {
			return storage.ErrAlreadyExists
		}
	}
	if user.Mobile != "" {
		if id, ok := s.byMobile[user.Mobile]; ok && id != user.ID {
			return storage.ErrAlreadyExists
		}
	}

	return nil
}

func (s *Storage) putLocked(u *models.User) {
	s.users[u.ID] = u
	if u.Email != "" {
		s.byEmail[u.Email] = u.ID
	}
	if u.Mobile != "" {
		s.byMobile[u.Mobile] = u.ID
	}
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
