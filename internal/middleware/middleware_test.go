package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/services"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[uuid.UUID]*models.Account

func (s stubResolver) FindActive(_ context.Context, id uuid.UUID) (*models.Account, error) {
	acc, ok := s[id]
	if !ok {
		return nil, services.ErrAccountNotFound
	}
	if !acc.Active {
		return nil, services.ErrUnauthorized
	}
	return acc, nil
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "middleware-test-secret", JWTAccessExpiry: time.Minute}
}

func newProtectedApp(cfg *config.Config, resolver AccountResolver, roles ...models.Role) *fiber.App {
	app := fiber.New()
	handlers := []fiber.Handler{JWTProtected(cfg), LoadAccount(resolver)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.SendString(CurrentAccount(c).Email)
	})
	app.Get("/me", handlers...)
	return app
}

func bearer(t *testing.T, cfg *config.Config, acc *models.Account) string {
	t.Helper()
	token, _, err := services.NewTokenIssuer(cfg, nil).IssueAccessToken(acc)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestLoadAccount(t *testing.T) {
	cfg := testConfig()
	user := &models.Account{ID: uuid.New(), Email: "user@example.com", Role: models.RoleUser, Active: true}
	inactive := &models.Account{ID: uuid.New(), Email: "off@example.com", Role: models.RoleUser}
	app := newProtectedApp(cfg, stubResolver{user.ID: user, inactive.ID: inactive})

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"no token", "", fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", fiber.StatusUnauthorized},
		{"active", bearer(t, cfg, user), fiber.StatusOK},
		{"inactive", bearer(t, cfg, inactive), fiber.StatusUnauthorized},
		{"unknown", bearer(t, cfg, &models.Account{ID: uuid.New()}), fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	cfg := testConfig()
	user := &models.Account{ID: uuid.New(), Email: "user@example.com", Role: models.RoleUser, Active: true}
	admin := &models.Account{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin, Active: true}
	app := newProtectedApp(cfg, stubResolver{user.ID: user, admin.ID: admin}, models.RoleAdmin)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", bearer(t, cfg, user))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", bearer(t, cfg, admin))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewRedisLimiter(rdb, "test")
	app := fiber.New()
	app.Use(limiter.Handler("auth", 2, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	mr.FastForward(time.Minute)
	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	var nilLimiter *RedisLimiter
	assert.True(t, nilLimiter.Allow(context.Background(), "k", 1, time.Second))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	limiter := NewRedisLimiter(rdb, "test")
	assert.True(t, limiter.Allow(context.Background(), "k", 1, time.Second))
}
