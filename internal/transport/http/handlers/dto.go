package handlers

import (
	"time"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type otpRequest struct {
	Mobile string `json:"mobile"`
}

type loginRequest struct {
	Mobile     string `json:"mobile"`
	OTP        string `json:"otp"`
	Role       string `json:"role"`
	DeviceInfo string `json:"deviceInfo"`
}

type emailLoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

// userView — публичные поля пользователя: без хэша пароля и списка сессий.
type userView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email,omitempty"`
	Mobile        string     `json:"mobile,omitempty"`
	Role          string     `json:"role"`
	Verified      bool       `json:"verified"`
	RegisterDate  time.Time  `json:"registerDate"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	WorkerProfile *string    `json:"workerProfile"`
	HasProfile    bool       `json:"hasProfile"`
}

func toUserView(u *models.User) userView {
	v := userView{
		ID:           u.ID.String(),
		Email:        u.Email,
		Mobile:       u.Mobile,
		Role:         string(u.Role),
		Verified:     u.Verified,
		RegisterDate: u.RegisteredAt,
		LastLogin:    u.LastLoginAt,
	}

	if u.WorkerProfileID != "" {
		id := u.WorkerProfileID
		v.WorkerProfile = &id
		v.HasProfile = true
	}

	return v
}

type authResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Access  string   `json:"access"`
	User    userView `json:"user"`
}

type refreshResponse struct {
	Success bool   `json:"success"`
	Access  string `json:"access"`
}

type otpResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type meResponse struct {
	User userView `json:"user"`
}

type sessionsResponse struct {
	Sessions []models.SessionInfo `json:"sessions"`
}
