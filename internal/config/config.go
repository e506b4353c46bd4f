package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Account flows
	ResetTokenExpiry time.Duration
	BcryptCost       int
	AdminEmails      string

	// Refresh token storage
	RefreshTokenStore string
	RedisURL          string
	RedisKeyPrefix    string
	RedisRetention    time.Duration

	// Rate limits (requests per minute per IP)
	AuthRateLimit int
	APIRateLimit  int

	// Email
	FrontendURL  string
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string

	// Server
	Port         string
	CORSOrigins  string
	AppEnv       string
	SentryDSN    string
	LogRetention time.Duration
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "accounts_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 7*24*time.Hour),

		ResetTokenExpiry: parseDuration(getEnv("RESET_TOKEN_EXPIRY", "24h"), 24*time.Hour),
		BcryptCost:       parseInt(getEnv("BCRYPT_COST", "10"), 10),
		AdminEmails:      getEnv("ADMIN_EMAILS", ""),

		RefreshTokenStore: strings.ToLower(getEnv("REFRESH_TOKEN_STORE", StorePostgres)),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisKeyPrefix:    getEnv("REDIS_KEY_PREFIX", "auth"),
		RedisRetention:    parseDuration(getEnv("REDIS_RETENTION", "168h"), 7*24*time.Hour),

		AuthRateLimit: parseInt(getEnv("AUTH_RATE_LIMIT", "10"), 10),
		APIRateLimit:  parseInt(getEnv("API_RATE_LIMIT", "60"), 60),

		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:4200"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		EmailFrom:    getEnv("EMAIL_FROM", "no-reply@localhost"),

		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:4200"),
		AppEnv:       getEnv("APP_ENV", "development"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		LogRetention: parseDuration(getEnv("LOG_RETENTION", "720h"), 30*24*time.Hour),
	}
}

// Validate reports the first configuration problem that prevents startup.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.DBPassword == "" {
		return errors.New("DB_PASSWORD environment variable is required")
	}
	switch c.RefreshTokenStore {
	case StorePostgres:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when REFRESH_TOKEN_STORE=redis")
		}
		if c.RedisRetention < time.Hour {
			return errors.New("REDIS_RETENTION must be at least 1h when REFRESH_TOKEN_STORE=redis")
		}
	default:
		return errors.New("REFRESH_TOKEN_STORE must be postgres or redis")
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AdminEmailList returns ADMIN_EMAILS lower-cased, trimmed and without blanks.
func (c *Config) AdminEmailList() []string {
	if c.AdminEmails == "" {
		return nil
	}
	parts := strings.Split(c.AdminEmails, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
