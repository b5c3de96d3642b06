package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/service"
)

// stubService — AuthService с подменяемыми Refresh и Logout.
type stubService struct {
	AuthService
	refresh func(ctx context.Context, token string) (*service.AuthResult, error)
	logout  func(ctx context.Context, token string) error
}

func (s stubService) Refresh(ctx context.Context, token string) (*service.AuthResult, error) {
	return s.refresh(ctx, token)
}

func (s stubService) Logout(ctx context.Context, token string) error {
	return s.logout(ctx, token)
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"mobile":"+15551234567"}`, false},
		{"unknown field", `{"mobile":"1","extra":1}`, true},
		{"trailing object", `{"mobile":"1"}{"mobile":"2"}`, true},
		{"trailing garbage", `{"mobile":"1"} x`, true},
		{"empty body", ``, true},
		{"wrong type", `{"mobile":1}`, true},
		{"too large", `{"mobile":"` + strings.Repeat("9", maxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in otpRequest
			err := decodeStrict(httptest.NewRecorder(), r, &in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "+15551234567", in.Mobile)
		})
	}
}

func TestToUserView(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &models.User{
		ID:           uuid.New(),
		Mobile:       "+15551234567",
		PasswordHash: "secret",
		Role:         models.RoleWorker,
		RegisteredAt: now,
		Sessions:     models.SessionList{{ID: uuid.New()}},
	}

	v := toUserView(u)
	require.Equal(t, u.ID.String(), v.ID)
	require.Equal(t, "worker", v.Role)
	require.Nil(t, v.WorkerProfile)
	require.False(t, v.HasProfile)
	require.Nil(t, v.LastLogin)

	u.WorkerProfileID = "wp-1"
	v = toUserView(u)
	require.NotNil(t, v.WorkerProfile)
	require.Equal(t, "wp-1", *v.WorkerProfile)
	require.True(t, v.HasProfile)
}

func TestSetRefreshCookie(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := New(nil, Cookie{Name: "jid", Domain: "example.com"})
	h.SetClock(func() time.Time { return now })

	rr := httptest.NewRecorder()
	h.setRefreshCookie(rr, "tok", now.Add(time.Hour))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "tok", c.Value)
	require.Equal(t, 3600, c.MaxAge)
	require.Equal(t, "example.com", c.Domain)
	require.True(t, c.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)

	// Истёкший срок удаляет cookie.
	rr = httptest.NewRecorder()
	h.setRefreshCookie(rr, "tok", now.Add(-time.Second))
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestRefresh_UnknownUserClearsCookie(t *testing.T) {
	t.Parallel()

	h := New(stubService{refresh: func(context.Context, string) (*service.AuthResult, error) {
		return nil, service.ErrUserNotFound
	}}, Cookie{Name: "jid"})

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	r.AddCookie(&http.Cookie{Name: "jid", Value: "tok"})
	rr := httptest.NewRecorder()

	h.Refresh(rr, r)

	require.Equal(t, http.StatusNotFound, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestRefresh_StorageFailureKeepsCookie(t *testing.T) {
	t.Parallel()

	h := New(stubService{refresh: func(context.Context, string) (*service.AuthResult, error) {
		return nil, errors.New("db down")
	}}, Cookie{Name: "jid"})

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	r.AddCookie(&http.Cookie{Name: "jid", Value: "tok"})
	rr := httptest.NewRecorder()

	h.Refresh(rr, r)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Empty(t, rr.Result().Cookies())
}

func TestLogout_StorageFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	var got string
	h := New(stubService{logout: func(_ context.Context, token string) error {
		got = token
		return errors.New("db down")
	}}, Cookie{Name: "jid"})

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: "jid", Value: "tok"})
	rr := httptest.NewRecorder()

	h.Logout(rr, r)

	require.Equal(t, "tok", got)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"success":true`)
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}
