package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-services-marketplace/internal/models"
	logctx "github.com/pribylovaa/go-services-marketplace/internal/pkg/log"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
	apierrors "github.com/pribylovaa/go-services-marketplace/internal/transport/http/errors"
)

// AccessVerifier проверяет access-токен (реализуется *token.Manager).
type AccessVerifier interface {
	VerifyAccess(tokenStr string) (*token.AccessPayload, error)
}

// Identity — проверенная личность вызывающего.
type Identity struct {
	UserID uuid.UUID
	Role   models.Role
}

type identityKey struct{}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom достаёт личность, положенную Authenticate или OptionalAuth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate требует заголовок Authorization: Bearer <token>.
// Ответы: нет токена — 401 NO_TOKEN; истёк — 401 TOKEN_EXPIRED
// (клиент должен вызвать refresh); любая другая ошибка — 401 INVALID_TOKEN.
// Хранилище не опрашивается: access-токен проверяется только по подписи и сроку.
func Authenticate(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrNoToken)
				return
			}

			id, err := verify(v, raw)
			if err != nil {
				logctx.From(r.Context()).Debug("access_token_rejected", slog.String("err", err.Error()))

				if errors.Is(err, token.ErrTokenExpired) {
					apierrors.WriteError(w, r, apierrors.ErrTokenExpired)
					return
				}
				apierrors.WriteError(w, r, apierrors.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Authorize пропускает только перечисленные роли: иначе 403 FORBIDDEN.
// Должен стоять после Authenticate; без личности в контексте — 401.
func Authorize(roles ...models.Role) Middleware {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			if _, ok := allowed[id.Role]; !ok {
				apierrors.WriteError(w, r, apierrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth пытается извлечь личность, но никогда не отклоняет запрос:
// при отсутствии или невалидности токена обработчик работает анонимно.
func OptionalAuth(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := bearerToken(r); ok {
				if id, err := verify(v, raw); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	tok := strings.TrimSpace(auth[len(prefix):])
	return tok, tok != ""
}

func verify(v AccessVerifier, raw string) (Identity, error) {
	p, err := v.VerifyAccess(raw)
	if err != nil {
		return Identity{}, err
	}

	role, ok := models.ParseRole(p.Role)
	if !ok {
		return Identity{}, token.ErrTokenInvalid
	}

	return Identity{UserID: p.Subject, Role: role}, nil
}
