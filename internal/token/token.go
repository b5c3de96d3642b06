// token выпускает и проверяет подписанные JWT двух классов — access и refresh —
// и генерирует непрозрачные идентификаторы refresh-токенов (rid).
//
// Access и refresh подписываются разными секретами: утечка одного ключа
// не позволяет подделать токены другого класса. Хранилище пакету не нужно.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired — подпись верна, но срок действия истёк.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid — подпись, алгоритм, issuer/audience или полезная нагрузка не сходятся.
	ErrTokenInvalid = errors.New("token invalid")
)

// ridBytes — энтропия rid: 256 бит.
const ridBytes = 32

// Config — параметры выпуска и проверки токенов.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      []string
	Leeway        time.Duration
}

// AccessClaims — полезная нагрузка access-токена.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims — полезная нагрузка refresh-токена.
type RefreshClaims struct {
	RID string `json:"rid"`
	jwt.RegisteredClaims
}

// AccessPayload — проверенные данные access-токена.
type AccessPayload struct {
	Subject uuid.UUID
	Role    string
}

// RefreshPayload — проверенные данные refresh-токена.
type RefreshPayload struct {
	Subject uuid.UUID
	RID     string
}

// Manager выпускает и проверяет токены. Безопасен для конкурентного использования,
// если SetClock вызывается только при инициализации.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager создаёт Manager. Секреты обязательны и должны различаться.
func NewManager(cfg Config) (*Manager, error) {
	const op = "token.NewManager"

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%s: secrets must be set", op)
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%s: access and refresh secrets must differ", op)
	}

	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%s: ttl must be > 0", op)
	}

	return &Manager{cfg: cfg, now: time.Now}, nil
}

// SetClock подменяет источник времени (для тестов).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// AccessTTL возвращает срок жизни access-токена.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL возвращает срок жизни refresh-токена.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// SignAccess подписывает access-токен {sub, role}.
func (m *Manager) SignAccess(sub uuid.UUID, role string) (string, time.Time, error) {
	const op = "token.SignAccess"

	now := m.now()
	exp := now.Add(m.cfg.AccessTTL)

	claims := AccessClaims{
		Role:             role,
		RegisteredClaims: m.registered(sub, now, exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.AccessSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// SignRefresh подписывает refresh-токен {sub, rid}.
func (m *Manager) SignRefresh(sub uuid.UUID, rid string) (string, time.Time, error) {
	const op = "token.SignRefresh"

	now := m.now()
	exp := now.Add(m.cfg.RefreshTTL)

	claims := RefreshClaims{
		RID:              rid,
		RegisteredClaims: m.registered(sub, now, exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.RefreshSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// VerifyAccess проверяет подпись, issuer, audience и срок access-токена.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessPayload, error) {
	const op = "token.VerifyAccess"

	var claims AccessClaims
	if err := m.parse(tokenStr, &claims, m.cfg.AccessSecret); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := uuid.Parse(claims.Subject)
	if err != nil || claims.Role == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	return &AccessPayload{Subject: sub, Role: claims.Role}, nil
}

// VerifyRefresh проверяет подпись, issuer, audience и срок refresh-токена.
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshPayload, error) {
	const op = "token.VerifyRefresh"

	var claims RefreshClaims
	if err := m.parse(tokenStr, &claims, m.cfg.RefreshSecret); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := uuid.Parse(claims.Subject)
	if err != nil || claims.RID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	return &RefreshPayload{Subject: sub, RID: claims.RID}, nil
}

// GenRefreshID возвращает 256 бит случайности в hex.
func GenRefreshID() (string, error) {
	const op = "token.GenRefreshID"

	b := make([]byte, ridBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(b), nil
}

// HashRefreshID — ключ поиска сессии: SHA-256(rid) в hex.
func HashRefreshID(rid string) string {
	sum := sha256.Sum256([]byte(rid))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) registered(sub uuid.UUID, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub.String(),
		Issuer:    m.cfg.Issuer,
		Audience:  jwt.ClaimStrings(m.cfg.Audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(m.cfg.Leeway),
	}
	if len(m.cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience...))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}

		return ErrTokenInvalid
	}

	if !token.Valid {
		return ErrTokenInvalid
	}

	return nil
}
