package service

import (
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-services-marketplace/internal/config"
	"github.com/pribylovaa/go-services-marketplace/internal/otp"
	"github.com/pribylovaa/go-services-marketplace/internal/password"
	"github.com/pribylovaa/go-services-marketplace/internal/storage/memory"
	"github.com/pribylovaa/go-services-marketplace/internal/token"
	"github.com/pribylovaa/go-services-marketplace/mocks"
)

const testOTP = "123456"

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:        "unit-access-secret",
		RefreshSecret:       "unit-refresh-secret",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     30 * 24 * time.Hour,
		Issuer:              "worker-app",
		Audience:            []string{"worker-app-users"},
		MaxSessions:         5,
		SelfAssignableRoles: []string{"user", "worker", "customer"},
	}
}

// fakeClock — управляемое время для сервиса и менеджера токенов.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTokens(t *testing.T, cfg config.AuthConfig, clk *fakeClock) *token.Manager {
	t.Helper()

	m, err := token.NewManager(token.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
	})
	require.NoError(t, err)
	m.SetClock(clk.Now)

	return m
}

func newHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(password.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	return h
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
}

type mockEnv struct {
	svc   *Service
	st    *mocks.MockStorage
	otp   *mocks.MockProvider
	clock *fakeClock
}

// newMockSvc — сервис поверх gomock-хранилища и gomock-провайдера OTP.
func newMockSvc(t *testing.T, mutate ...func(*config.AuthConfig)) *mockEnv {
	t.Helper()

	cfg := testCfg()
	for _, m := range mutate {
		m(&cfg)
	}

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	op := mocks.NewMockProvider(ctrl)
	clk := newClock()

	svc := New(st, newTokens(t, cfg, clk), newHasher(t), op, cfg)
	svc.SetClock(clk.Now)

	return &mockEnv{svc: svc, st: st, otp: op, clock: clk}
}

type memEnv struct {
	svc   *Service
	st    *memory.Storage
	clock *fakeClock
	tok   *token.Manager
}

// newMemSvc — сервис поверх хранилища в памяти и статического OTP.
func newMemSvc(t *testing.T) *memEnv {
	t.Helper()

	cfg := testCfg()
	st := memory.New()
	clk := newClock()
	tok := newTokens(t, cfg, clk)

	svc := New(st, tok, newHasher(t), otp.NewStatic(testOTP, 5*time.Minute), cfg)
	svc.SetClock(clk.Now)

	return &memEnv{svc: svc, st: st, clock: clk, tok: tok}
}

// recorder запоминает события аутентификации.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+outcome)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
