package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-services-marketplace/internal/service"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
)

func TestToHTTP_Mapping(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   string
	}{
		{"missing", service.ErrMissingCredentials, http.StatusBadRequest, CodeValidation},
		{"email", fmt.Errorf("op: %w", service.ErrInvalidEmail), http.StatusBadRequest, CodeValidation},
		{"mobile", service.ErrInvalidMobile, http.StatusBadRequest, CodeValidation},
		{"short password", service.ErrPasswordTooShort, http.StatusBadRequest, CodeValidation},
		{"role", service.ErrRoleNotAllowed, http.StatusBadRequest, CodeValidation},
		{"body", ErrMalformedBody, http.StatusBadRequest, CodeValidation},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"mobile only", service.ErrMobileLoginOnly, http.StatusUnauthorized, CodeMobileLoginOnly},
		{"otp", service.ErrInvalidOTP, http.StatusUnauthorized, CodeInvalidOTP},
		{"no refresh", service.ErrNoRefreshToken, http.StatusUnauthorized, CodeNoRefreshToken},
		{"invalid refresh", service.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken},
		{"revoked", service.ErrSessionRevoked, http.StatusUnauthorized, CodeSessionNotFound},
		{"expired session", service.ErrSessionExpired, http.StatusUnauthorized, CodeSessionExpired},
		{"no token", ErrNoToken, http.StatusUnauthorized, CodeNoToken},
		{"token expired", ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
		{"invalid token", ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
		{"forbidden", ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"conflict", service.ErrEmailTaken, http.StatusConflict, CodeConflict},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound, CodeNotFound},
		{"route", ErrRouteNotFound, http.StatusNotFound, CodeNotFound},
		{"method", ErrMethodNotAllowed, http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"cooldown", service.ErrOTPCooldown, http.StatusTooManyRequests, CodeOTPCooldown},
		{"rate", ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{"otp down", service.ErrOTPUnavailable, http.StatusServiceUnavailable, CodeOTPUnavailable},
		{"canceled", context.Canceled, StatusClientClosedRequest, CodeCanceled},
		{"deadline", fmt.Errorf("db: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"other", stderrors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Code)
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestToHTTP_RefreshWrapsTokenExpiry(t *testing.T) {
	// Истёкший refresh-токен — это INVALID_REFRESH_TOKEN, а не TOKEN_EXPIRED.
	err := fmt.Errorf("service.auth.Refresh: %w: %w", service.ErrInvalidRefreshToken, token.ErrTokenExpired)

	status, resp := ToHTTP(err)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, CodeInvalidRefreshToken, resp.Code)
}

func TestToHTTP_PasswordPolicyDetails(t *testing.T) {
	err := fmt.Errorf("op: %w", &service.PasswordPolicyError{Problems: []string{"a", "b"}})

	status, resp := ToHTTP(err)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, CodeValidation, resp.Code)
	require.Equal(t, []string{"a", "b"}, resp.Details)
}

func TestToHTTP_NilError_Returns500Internal(t *testing.T) {
	gotStatus, resp := ToHTTP(nil)
	require.Equal(t, http.StatusInternalServerError, gotStatus)
	require.Equal(t, CodeInternal, resp.Code)
	require.Equal(t, "internal error", resp.Error)
}

func TestWriteError(t *testing.T) {
	secret := stderrors.New("pq: connection refused to 10.0.0.5")

	t.Run("hides internals by default", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "rid-1")

		WriteError(rr, req, secret)

		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, "internal error", body["error"])
		require.Equal(t, CodeInternal, body["code"])
		require.Equal(t, "rid-1", body["request_id"])
		require.NotContains(t, body, "details")
	})

	t.Run("debug exposes details", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithDebug(req.Context()))

		WriteError(rr, req, secret)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, secret.Error(), resp.Details)
	})

	t.Run("debug does not touch 4xx", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithDebug(req.Context()))

		WriteError(rr, req, fmt.Errorf("wrapped: %w", service.ErrInvalidOTP))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, CodeInvalidOTP, resp.Code)
		require.Nil(t, resp.Details)
	})
}
