package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	logctx "github.com/pribylovaa/go-services-marketplace/internal/pkg/log"
	"github.com/pribylovaa/go-services-marketplace/internal/service"
	apierrors "github.com/pribylovaa/go-services-marketplace/internal/transport/http/errors"
	"github.com/pribylovaa/go-services-marketplace/internal/transport/http/middleware"
)

// Register — POST /auth/register. Сессия не создаётся: только access-токен.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrMalformedBody)
		return
	}

	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Success: true,
		Message: "User registered successfully",
		Access:  res.Tokens.AccessToken,
		User:    toUserView(res.User),
	})
}

// RequestOTP — POST /auth/otp: выпуск одноразового кода для номера.
func (h *Handlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var in otpRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrMalformedBody)
		return
	}

	exp, err := h.svc.RequestOTP(r.Context(), in.Mobile)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, otpResponse{Success: true, ExpiresAt: exp})
}

// Login — POST /auth/login: телефон + OTP.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrMalformedBody)
		return
	}

	res, err := h.svc.Login(r.Context(), service.OTPLoginInput{
		Mobile:     in.Mobile,
		OTP:        in.OTP,
		Role:       in.Role,
		DeviceInfo: in.DeviceInfo,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeSession(w, res)
}

// EmailLogin — POST /auth/email-login: e-mail + пароль.
func (h *Handlers) EmailLogin(w http.ResponseWriter, r *http.Request) {
	var in emailLoginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrMalformedBody)
		return
	}

	res, err := h.svc.EmailLogin(r.Context(), service.EmailLoginInput{
		Email:      in.Email,
		Password:   in.Password,
		DeviceInfo: in.DeviceInfo,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeSession(w, res)
}

// writeSession — общий ответ обоих способов входа: cookie с refresh и тело с access.
func (h *Handlers) writeSession(w http.ResponseWriter, res *service.AuthResult) {
	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Access:  res.Tokens.AccessToken,
		User:    toUserView(res.User),
	})
}

// Refresh — POST /auth/refresh: ротация refresh-токена из cookie.
// Cookie удаляется, если токен больше ни на что не годен.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Refresh(r.Context(), h.refreshToken(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) ||
			errors.Is(err, service.ErrUserNotFound) ||
			errors.Is(err, service.ErrSessionRevoked) ||
			errors.Is(err, service.ErrSessionExpired) {
			h.clearRefreshCookie(w)
		}

		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Access: res.Tokens.AccessToken})
}

// Logout — POST /auth/logout. Клиенту всегда отвечает успехом и удаляет cookie;
// сбой хранилища только логируется.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), h.refreshToken(r)); err != nil {
		logctx.From(r.Context()).Warn("logout_failed", slog.String("err", err.Error()))
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

// Me — GET /auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	user, err := h.svc.Me(r.Context(), id.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserView(user)})
}

// Sessions — GET /auth/sessions.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	sessions, err := h.svc.Sessions(r.Context(), id.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// RevokeSession — DELETE /auth/sessions/{sessionId}.
// Невалидный id неотличим от несуществующего: 404.
func (h *Handlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		apierrors.WriteError(w, r, service.ErrSessionNotFound)
		return
	}

	if err := h.svc.RevokeSession(r.Context(), id.UserID, sessionID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Session revoked successfully"})
}
