package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	accountHandler *handlers.AccountHandler,
	healthHandler *handlers.HealthHandler,
	resolver middleware.AccountResolver,
	redisLimiter *middleware.RedisLimiter,
) {
	api := app.Group("/api")

	// General API rate limiter, per IP
	api.Use(limiter.New(limiter.Config{
		Max:               cfg.APIRateLimit,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	accounts := api.Group("/accounts")

	// Credential endpoints get a stricter limit, shared across instances when
	// Redis is available
	var authLimit fiber.Handler
	if redisLimiter != nil {
		authLimit = redisLimiter.Handler("auth", cfg.AuthRateLimit, time.Minute)
	} else {
		authLimit = limiter.New(limiter.Config{
			Max:               cfg.AuthRateLimit,
			Expiration:        1 * time.Minute,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		})
	}

	accounts.Post("/authenticate", authLimit, accountHandler.Authenticate)
	accounts.Post("/refresh-token", authLimit, accountHandler.RefreshToken)
	accounts.Post("/register", authLimit, accountHandler.Register)
	accounts.Post("/verify-email", authLimit, accountHandler.VerifyEmail)
	accounts.Post("/forgot-password", authLimit, accountHandler.ForgotPassword)
	accounts.Post("/validate-reset-token", authLimit, accountHandler.ValidateResetToken)
	accounts.Post("/reset-password", authLimit, accountHandler.ResetPassword)

	jwt := middleware.JWTProtected(cfg)
	load := middleware.LoadAccount(resolver)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// Owner-or-admin checks on /:id happen in the handler
	accounts.Post("/revoke-token", jwt, load, accountHandler.RevokeToken)
	accounts.Get("/", jwt, load, adminOnly, accountHandler.List)
	accounts.Post("/", jwt, load, adminOnly, accountHandler.Create)
	accounts.Get("/:id", jwt, load, accountHandler.Get)
	accounts.Get("/:id/refresh-tokens", jwt, load, accountHandler.ListRefreshTokens)
	accounts.Put("/:id", jwt, load, accountHandler.Update)
	accounts.Put("/:id/active", jwt, load, adminOnly, accountHandler.SetActive)
	accounts.Delete("/:id", jwt, load, accountHandler.Delete)
}
