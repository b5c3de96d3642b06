package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	"github.com/pribylovaa/go-services-marketplace/internal/service"
)

// maxBodyBytes — предел тела JSON-запроса.
const maxBodyBytes = 1 << 20

// AuthService — операции сервиса, которые нужны хендлерам (реализуется *service.Service).
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	RequestOTP(ctx context.Context, mobile string) (time.Time, error)
	Login(ctx context.Context, in service.OTPLoginInput) (*service.AuthResult, error)
	EmailLogin(ctx context.Context, in service.EmailLoginInput) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Sessions(ctx context.Context, userID uuid.UUID) ([]models.SessionInfo, error)
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	svc    AuthService
	cookie Cookie
	now    func() time.Time
}

// New создаёт Handlers.
func New(svc AuthService, cookie Cookie) *Handlers {
	return &Handlers{svc: svc, cookie: cookie, now: time.Now}
}

// SetClock подменяет источник времени для расчёта Max-Age cookie.
func (h *Handlers) SetClock(now func() time.Time) {
	h.now = now
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля,
// ограничиваем размер и отвергаем данные после первого объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}

	return nil
}
