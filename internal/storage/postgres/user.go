package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
)

const userColumns = `
	id,
	COALESCE(email, ''),
	COALESCE(mobile, ''),
	COALESCE(password_hash, ''),
	role,
	COALESCE(worker_profile_id, ''),
	verified,
	registered_at,
	last_login_at,
	created_at,
	updated_at
`

// querier — общий интерфейс пула и транзакции.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// CreateUser создаёт пользователя и его сессии в одной транзакции.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO users(id, email, mobile, password_hash, role, worker_profile_id,
			                  verified, registered_at, last_login_at, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''),
			        $7, $8, $9, $10, $11)
		`

		_, err := tx.Exec(ctx, query,
			user.ID,
			user.Email,
			user.Mobile,
			user.PasswordHash,
			string(user.Role),
			user.WorkerProfileID,
			user.Verified,
			user.RegisteredAt,
			user.LastLoginAt,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return err
		}

		return upsertSessions(ctx, tx, user)
	})

	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}

	return nil
}

// SaveUser перезаписывает пользователя в одной транзакции: обновляет строку users,
// удаляет отсутствующие сессии и upsert-ит присутствующие с их порядком.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		query := `
			UPDATE users
			SET email = NULLIF($2, ''),
			    mobile = NULLIF($3, ''),
			    password_hash = NULLIF($4, ''),
			    role = $5,
			    worker_profile_id = NULLIF($6, ''),
			    verified = $7,
			    registered_at = $8,
			    last_login_at = $9,
			    created_at = $10,
			    updated_at = $11
			WHERE id = $1
		`

		tag, err := tx.Exec(ctx, query,
			user.ID,
			user.Email,
			user.Mobile,
			user.PasswordHash,
			string(user.Role),
			user.WorkerProfileID,
			user.Verified,
			user.RegisteredAt,
			user.LastLoginAt,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}

		keep := make([]string, 0, len(user.Sessions))
		for _, sess := range user.Sessions {
			keep = append(keep, sess.ID.String())
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM sessions WHERE user_id = $1 AND NOT (id::text = ANY($2::text[]))`,
			user.ID, keep,
		)
		if err != nil {
			return err
		}

		return upsertSessions(ctx, tx, user)
	})

	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}

	return nil
}

func upsertSessions(ctx context.Context, q querier, user *models.User) error {
	if len(user.Sessions) == 0 {
		return nil
	}

	query := `
		INSERT INTO sessions(id, user_id, position, device_info, refresh_token_hash,
		                     created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET position = EXCLUDED.position,
		    device_info = EXCLUDED.device_info,
		    refresh_token_hash = EXCLUDED.refresh_token_hash,
		    last_used_at = EXCLUDED.last_used_at,
		    expires_at = EXCLUDED.expires_at
		WHERE sessions.user_id = EXCLUDED.user_id
	`

	batch := &pgx.Batch{}
	for i, sess := range user.Sessions {
		batch.Queue(query,
			sess.ID,
			user.ID,
			i,
			sess.DeviceInfo,
			sess.RefreshTokenHash,
			sess.CreatedAt,
			sess.LastUsedAt,
			sess.ExpiresAt,
		)
	}

	return q.SendBatch(ctx, batch).Close()
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	if email == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.userBy(ctx, op, `email = $1`, email)
}

// UserByMobile находит пользователя по номеру телефона.
func (s *Storage) UserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	const op = "storage.postgres.UserByMobile"

	if mobile == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return s.userBy(ctx, op, `mobile = $1`, mobile)
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.userBy(ctx, "storage.postgres.UserByID", `id = $1`, id)
}

func (s *Storage) userBy(ctx context.Context, op, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	var (
		user models.User
		role string
	)

	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Mobile,
		&user.PasswordHash,
		&role,
		&user.WorkerProfileID,
		&user.Verified,
		&user.RegisteredAt,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Role = models.Role(role)

	sessions, err := loadSessions(ctx, s.db, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Sessions = sessions

	return &user, nil
}

func loadSessions(ctx context.Context, q querier, userID uuid.UUID) (models.SessionList, error) {
	query := `
		SELECT id, device_info, refresh_token_hash, created_at, last_used_at, expires_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY position
	`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(models.SessionList, 0)
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(
			&sess.ID,
			&sess.DeviceInfo,
			&sess.RefreshTokenHash,
			&sess.CreatedAt,
			&sess.LastUsedAt,
			&sess.ExpiresAt,
		); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}

	return out, rows.Err()
}

// DeleteExpiredSessions удаляет все просроченные сессии.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredSessions"

	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// mapError переводит ошибки PostgreSQL в ошибки хранилища.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return storage.ErrAlreadyExists
		case pgerrcode.CheckViolation:
			return models.ErrNoContact
		}
	}

	return err
}
