// errors стандартизирует ответы об ошибках HTTP-слоя auth-сервиса.
// На вход принимает ошибку (сентинелы service/token или ошибки самого транспорта),
// на выход даёт:
//   - HTTP-статус;
//   - машиночитаемый code, на который реагирует клиент (TOKEN_EXPIRED → refresh);
//   - безопасное сообщение без утечки внутренних деталей.
//
// Детали 500-х ошибок попадают в ответ только если контекст запроса помечен WithDebug.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-services-marketplace/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Машиночитаемые коды ошибок.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeMobileLoginOnly     = "MOBILE_LOGIN_ONLY"
	CodeInvalidOTP          = "INVALID_OTP"
	CodeNoRefreshToken      = "NO_REFRESH_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeNoToken             = "NO_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeOTPCooldown         = "OTP_COOLDOWN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeOTPUnavailable      = "OTP_UNAVAILABLE"
	CodeCanceled            = "CANCELED"
	CodeTimeout             = "TIMEOUT"
	CodeInternal            = "INTERNAL"
)

// Ошибки транспортного слоя (до вызова сервиса).
var (
	ErrMalformedBody    = stderrors.New("invalid request body")
	ErrNoToken          = stderrors.New("no token provided")
	ErrTokenExpired     = stderrors.New("token expired")
	ErrInvalidToken     = stderrors.New("invalid token")
	ErrUnauthenticated  = stderrors.New("unauthorized")
	ErrForbidden        = stderrors.New("forbidden")
	ErrRouteNotFound    = stderrors.New("route not found")
	ErrMethodNotAllowed = stderrors.New("method not allowed")
	ErrRateLimited      = stderrors.New("too many requests")
)

// ErrorResponse — единый формат ошибки для фронта.
// Code — короткий стабильный код для машиночитаемой обработки.
// Error — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть.
// Details — нарушения политики пароля (400) или текст ошибки (500, только debug).
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type debugKey struct{}

// WithDebug помечает контекст: ответы 500 будут содержать текст ошибки.
func WithDebug(ctx context.Context) context.Context {
	return context.WithValue(ctx, debugKey{}, true)
}

func debugEnabled(ctx context.Context) bool {
	v, _ := ctx.Value(debugKey{}).(bool)
	return v
}

type mapping struct {
	target error
	status int
	code   string
}

// table — порядок важен: ErrInvalidRefreshToken оборачивает причину из token,
// поэтому сервисные сентинелы проверяются раньше транспортных.
var table = []mapping{
	{service.ErrMissingCredentials, http.StatusBadRequest, CodeValidation},
	{service.ErrInvalidEmail, http.StatusBadRequest, CodeValidation},
	{service.ErrInvalidMobile, http.StatusBadRequest, CodeValidation},
	{service.ErrPasswordTooShort, http.StatusBadRequest, CodeValidation},
	{service.ErrWeakPassword, http.StatusBadRequest, CodeValidation},
	{service.ErrRoleNotAllowed, http.StatusBadRequest, CodeValidation},
	{ErrMalformedBody, http.StatusBadRequest, CodeValidation},

	{service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
	{service.ErrMobileLoginOnly, http.StatusUnauthorized, CodeMobileLoginOnly},
	{service.ErrInvalidOTP, http.StatusUnauthorized, CodeInvalidOTP},
	{service.ErrNoRefreshToken, http.StatusUnauthorized, CodeNoRefreshToken},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken},
	{service.ErrSessionRevoked, http.StatusUnauthorized, CodeSessionNotFound},
	{service.ErrSessionExpired, http.StatusUnauthorized, CodeSessionExpired},
	{ErrNoToken, http.StatusUnauthorized, CodeNoToken},
	{ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
	{ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
	{ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},

	{ErrForbidden, http.StatusForbidden, CodeForbidden},

	{service.ErrEmailTaken, http.StatusConflict, CodeConflict},

	{service.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, CodeNotFound},
	{ErrRouteNotFound, http.StatusNotFound, CodeNotFound},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, CodeMethodNotAllowed},

	{service.ErrOTPCooldown, http.StatusTooManyRequests, CodeOTPCooldown},
	{ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},

	{service.ErrOTPUnavailable, http.StatusServiceUnavailable, CodeOTPUnavailable},
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/INTERNAL, чтобы не маскировать баг;
//   - известный сентинел — статус и код из таблицы, сообщение — текст сентинела;
//   - отмена/дедлайн контекста — 499/504;
//   - прочее — 500/INTERNAL с обобщённым сообщением.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal}
	}

	for _, m := range table {
		if stderrors.Is(err, m.target) {
			resp := ErrorResponse{Error: m.target.Error(), Code: m.code}

			var pe *service.PasswordPolicyError
			if stderrors.As(err, &pe) {
				resp.Details = pe.Problems
			}

			return m.status, resp
		}
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrorResponse{Error: "request canceled", Code: CodeCanceled}
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Code: CodeTimeout}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal}
}

// WriteError — хелпер для HTTP-хендлеров и middleware.
// Пишет статус и тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	if status == http.StatusInternalServerError && err != nil && debugEnabled(r.Context()) {
		resp.Details = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
