package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
)

type sessionDoc struct {
	ID               string    `bson:"id"`
	DeviceInfo       string    `bson:"device_info"`
	RefreshTokenHash string    `bson:"refresh_token_hash"`
	CreatedAt        time.Time `bson:"created_at"`
	LastUsedAt       time.Time `bson:"last_used_at"`
	ExpiresAt        time.Time `bson:"expires_at"`
}

type userDoc struct {
	ID              string       `bson:"_id"`
	Email           string       `bson:"email,omitempty"`
	Mobile          string       `bson:"mobile,omitempty"`
	PasswordHash    string       `bson:"password_hash,omitempty"`
	Role            string       `bson:"role"`
	WorkerProfileID string       `bson:"worker_profile_id,omitempty"`
	Verified        bool         `bson:"verified"`
	RegisteredAt    time.Time    `bson:"register_date"`
	LastLoginAt     *time.Time   `bson:"last_login,omitempty"`
	CreatedAt       time.Time    `bson:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at"`
	Sessions        []sessionDoc `bson:"sessions"`
}

func toDoc(u *models.User) userDoc {
	d := userDoc{
		ID:              u.ID.String(),
		Email:           u.Email,
		Mobile:          u.Mobile,
		PasswordHash:    u.PasswordHash,
		Role:            string(u.Role),
		WorkerProfileID: u.WorkerProfileID,
		Verified:        u.Verified,
		RegisteredAt:    u.RegisteredAt.UTC(),
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
		Sessions:        make([]sessionDoc, 0, len(u.Sessions)),
	}

	if u.LastLoginAt != nil {
		t := u.LastLoginAt.UTC()
		d.LastLoginAt = &t
	}

	for _, s := range u.Sessions {
		d.Sessions = append(d.Sessions, sessionDoc{
			ID:               s.ID.String(),
			DeviceInfo:       s.DeviceInfo,
			RefreshTokenHash: s.RefreshTokenHash,
			CreatedAt:        s.CreatedAt.UTC(),
			LastUsedAt:       s.LastUsedAt.UTC(),
			ExpiresAt:        s.ExpiresAt.UTC(),
		})
	}

	return d
}

func fromDoc(d userDoc) (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", d.ID, err)
	}

	u := &models.User{
		ID:              id,
		Email:           d.Email,
		Mobile:          d.Mobile,
		PasswordHash:    d.PasswordHash,
		Role:            models.Role(d.Role),
		WorkerProfileID: d.WorkerProfileID,
		Verified:        d.Verified,
		RegisteredAt:    d.RegisteredAt,
		LastLoginAt:     d.LastLoginAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Sessions:        make(models.SessionList, 0, len(d.Sessions)),
	}

	for _, s := range d.Sessions {
		sid, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", s.ID, err)
		}

		u.Sessions = append(u.Sessions, models.Session{
			ID:               sid,
			DeviceInfo:       s.DeviceInfo,
			RefreshTokenHash: s.RefreshTokenHash,
			CreatedAt:        s.CreatedAt,
			LastUsedAt:       s.LastUsedAt,
			ExpiresAt:        s.ExpiresAt,
		})
	}

	return u, nil
}

// CreateUser создаёт нового пользователя.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.CreateUser"

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.users.InsertOne(ctx, toDoc(user)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SaveUser заменяет документ пользователя целиком (атомарно на уровне документа).
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID.String()}, toDoc(user))
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.findOne(ctx, op, bson.M{"email": email})
}

// UserByMobile находит пользователя по номеру телефона.
func (s *Storage) UserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	const op = "storage.mongo.UserByMobile"

	if mobile == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.findOne(ctx, op, bson.M{"mobile": mobile})
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, "storage.mongo.UserByID", bson.M{"_id": id.String()})
}

func (s *Storage) findOne(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := fromDoc(d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// DeleteExpiredSessions удаляет сессии с expires_at <= now у всех пользователей.
// Сначала считает удаляемые сессии агрегацией, затем снимает их через $pull.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongo.DeleteExpiredSessions"

	expired := bson.M{"$lte": now.UTC()}

	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: bson.M{"sessions.expires_at": expired}}},
		{{Key: "$unwind", Value: "$sessions"}},
		{{Key: "$match", Value: bson.M{"sessions.expires_at": expired}}},
		{{Key: "$count", Value: "n"}},
	}

	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", op, err)
	}

	var counted []struct {
		N int64 `bson:"n"`
	}
	if err := cur.All(ctx, &counted); err != nil {
		return 0, fmt.Errorf("%s: count: %w", op, err)
	}

	if len(counted) == 0 || counted[0].N == 0 {
		return 0, nil
	}

	_, err = s.users.UpdateMany(ctx,
		bson.M{"sessions.expires_at": expired},
		bson.M{"$pull": bson.M{"sessions": bson.M{"expires_at": expired}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return counted[0].N, nil
}
