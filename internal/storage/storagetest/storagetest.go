// storagetest — общий набор проверок для реализаций storage.Storage.
// Драйверы вызывают Run из своих тестов, передавая фабрику чистого хранилища.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/storage"
)

// Factory возвращает пустое хранилище. Очистку регистрирует через t.Cleanup.
type Factory func(t *testing.T) storage.Storage

// base — момент времени с точностью до миллисекунды (Mongo хранит ms).
var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// NewUser строит валидного пользователя с заданными контактами.
func NewUser(email, mobile string) *models.User {
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		Mobile:       mobile,
		Role:         models.RoleUser,
		RegisteredAt: base,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

// Run запускает общий набор сценариев.
func Run(t *testing.T, newStorage Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStorage(t)) })
	t.Run("RejectsContactless", func(t *testing.T) { testRejectsContactless(t, newStorage(t)) })
	t.Run("UniqueEmailAndMobile", func(t *testing.T) { testUnique(t, newStorage(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStorage(t)) })
	t.Run("SaveReplacesSessions", func(t *testing.T) { testSaveReplacesSessions(t, newStorage(t)) })
	t.Run("SaveUnknownUser", func(t *testing.T) { testSaveUnknown(t, newStorage(t)) })
	t.Run("SaveConflictingEmail", func(t *testing.T) { testSaveConflict(t, newStorage(t)) })
	t.Run("ReturnedUserIsCopy", func(t *testing.T) { testReturnedCopy(t, newStorage(t)) })
	t.Run("DeleteExpiredSessions", func(t *testing.T) { testDeleteExpired(t, newStorage(t)) })
}

// RequireSameUser сравнивает пользователей с учётом точности хранения времени.
func RequireSameUser(t *testing.T, want, got *models.User) {
	t.Helper()

	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Email, got.Email)
	require.Equal(t, want.Mobile, got.Mobile)
	require.Equal(t, want.PasswordHash, got.PasswordHash)
	require.Equal(t, want.Role, got.Role)
	require.Equal(t, want.WorkerProfileID, got.WorkerProfileID)
	require.Equal(t, want.Verified, got.Verified)
	require.WithinDuration(t, want.RegisteredAt, got.RegisteredAt, time.Millisecond)
	require.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Millisecond)
	require.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Millisecond)

	if want.LastLoginAt == nil {
		require.Nil(t, got.LastLoginAt)
	} else {
		require.NotNil(t, got.LastLoginAt)
		require.WithinDuration(t, *want.LastLoginAt, *got.LastLoginAt, time.Millisecond)
	}

	require.Len(t, got.Sessions, len(want.Sessions))
	for i := range want.Sessions {
		w, g := want.Sessions[i], got.Sessions[i]
		require.Equal(t, w.ID, g.ID, "session %d", i)
		require.Equal(t, w.DeviceInfo, g.DeviceInfo)
		require.Equal(t, w.RefreshTokenHash, g.RefreshTokenHash)
		require.WithinDuration(t, w.CreatedAt, g.CreatedAt, time.Millisecond)
		require.WithinDuration(t, w.LastUsedAt, g.LastUsedAt, time.Millisecond)
		require.WithinDuration(t, w.ExpiresAt, g.ExpiresAt, time.Millisecond)
	}
}

func testCreateAndFind(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	u := NewUser("user@example.com", "9999999999")
	u.PasswordHash = "$argon2id$hash"
	u.Role = models.RoleWorker
	u.WorkerProfileID = "profile-1"
	last := base.Add(time.Hour)
	u.LastLoginAt = &last
	u.AddSession("Chrome", "hash-1", 24*time.Hour, 5, base)
	u.AddSession("Firefox", "hash-2", 24*time.Hour, 5, base.Add(time.Minute))

	require.NoError(t, st.CreateUser(ctx, u))

	byEmail, err := st.UserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	RequireSameUser(t, u, byEmail)

	byMobile, err := st.UserByMobile(ctx, "9999999999")
	require.NoError(t, err)
	RequireSameUser(t, u, byMobile)

	byID, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	RequireSameUser(t, u, byID)

	// Пользователь только с телефоном.
	m := NewUser("", "8888888888")
	require.NoError(t, st.CreateUser(ctx, m))

	got, err := st.UserByMobile(ctx, "8888888888")
	require.NoError(t, err)
	require.Empty(t, got.Email)
	require.Empty(t, got.Sessions)
}

func testRejectsContactless(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	u := NewUser("", "")
	require.ErrorIs(t, st.CreateUser(ctx, u), models.ErrNoContact)

	ok := NewUser("a@example.com", "")
	require.NoError(t, st.CreateUser(ctx, ok))

	ok.Email = ""
	require.ErrorIs(t, st.SaveUser(ctx, ok), models.ErrNoContact)
}

func testUnique(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, NewUser("dup@example.com", "")))
	require.ErrorIs(t, st.CreateUser(ctx, NewUser("dup@example.com", "")), storage.ErrAlreadyExists)

	require.NoError(t, st.CreateUser(ctx, NewUser("", "7777777777")))
	require.ErrorIs(t, st.CreateUser(ctx, NewUser("", "7777777777")), storage.ErrAlreadyExists)

	// Несколько пользователей без e-mail или без телефона допустимы.
	require.NoError(t, st.CreateUser(ctx, NewUser("", "6666666666")))
	require.NoError(t, st.CreateUser(ctx, NewUser("other@example.com", "")))

	same := NewUser("x@example.com", "")
	require.NoError(t, st.CreateUser(ctx, same))
	require.ErrorIs(t, st.CreateUser(ctx, same), storage.ErrAlreadyExists)
}

func testNotFound(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	_, err := st.UserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByMobile(ctx, "0000000000")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByEmail(ctx, "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testSaveReplacesSessions(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	u := NewUser("s@example.com", "")
	first := u.AddSession("A", "h1", time.Hour, 5, base)
	u.AddSession("B", "h2", time.Hour, 5, base.Add(time.Second))
	require.NoError(t, st.CreateUser(ctx, u))

	u.RemoveSession("h1")
	s := u.FindSessionByHash("h2")
	require.NotNil(t, s)
	u.RotateSession(s, "h2-rotated", base.Add(time.Minute))
	u.AddSession("C", "h3", time.Hour, 5, base.Add(2*time.Minute))
	u.UpdatedAt = base.Add(2 * time.Minute)
	u.Mobile = "5555555555"
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	RequireSameUser(t, u, got)
	require.Nil(t, got.Sessions.FindByID(first.ID))
	require.NotNil(t, got.FindSessionByHash("h2-rotated"))
	require.Nil(t, got.FindSessionByHash("h2"))

	byMobile, err := st.UserByMobile(ctx, "5555555555")
	require.NoError(t, err)
	require.Equal(t, u.ID, byMobile.ID)

	// Удаление всех сессий.
	u.Sessions = nil
	require.NoError(t, st.SaveUser(ctx, u))

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, got.Sessions)
}

func testSaveUnknown(t *testing.T, st storage.Storage) {
	require.ErrorIs(t, st.SaveUser(context.Background(), NewUser("ghost@example.com", "")), storage.ErrNotFound)
}

func testSaveConflict(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	a := NewUser("a@example.com", "")
	b := NewUser("b@example.com", "")
	require.NoError(t, st.CreateUser(ctx, a))
	require.NoError(t, st.CreateUser(ctx, b))

	b.Email = "a@example.com"
	require.ErrorIs(t, st.SaveUser(ctx, b), storage.ErrAlreadyExists)

	got, err := st.UserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
}

func testReturnedCopy(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	u := NewUser("copy@example.com", "")
	u.AddSession("A", "h1", time.Hour, 5, base)
	require.NoError(t, st.CreateUser(ctx, u))

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	got.Sessions[0].DeviceInfo = "mutated"
	got.Role = models.RoleAdmin

	again, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "A", again.Sessions[0].DeviceInfo)
	require.Equal(t, models.RoleUser, again.Role)
}

func testDeleteExpired(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	a := NewUser("exp-a@example.com", "")
	a.AddSession("old", "a1", time.Hour, 5, base)
	a.AddSession("fresh", "a2", 48*time.Hour, 5, base)

	b := NewUser("exp-b@example.com", "")
	b.AddSession("old", "b1", time.Hour, 5, base)

	c := NewUser("exp-c@example.com", "")
	c.AddSession("fresh", "c1", 48*time.Hour, 5, base)

	for _, u := range []*models.User{a, b, c} {
		require.NoError(t, st.CreateUser(ctx, u))
	}

	n, err := st.DeleteExpiredSessions(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := st.UserByID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 1)
	require.Equal(t, "a2", got.Sessions[0].RefreshTokenHash)

	got, err = st.UserByID(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, got.Sessions)

	got, err = st.UserByID(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 1)

	n, err = st.DeleteExpiredSessions(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}
