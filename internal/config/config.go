// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package config materializes CLI flags, environment variables and the
// TOML config file into one explicit Config struct, built once at
// startup and injected into every component constructor.
package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	SecretKey        string // signs JWTs and derives the 2FA secret encryption key
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	TwoFactorIssuer  string
	CookieSessions   bool   // mirror tokens into httpOnly cookies
	CookieName       string
	CookieSecure     bool
	CookieHashKey    string // 32-byte hex for HMAC signing of session cookies
	CookieBlockKey   string // 32-byte hex for AES encryption, optional
	RegistrationOpen bool
}

type RateLimitConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Enabled       bool
	RedisURL      string // empty selects the in-process fallback
	LoginAttempts int
	LoginWindow   time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// NewFromCLI builds the Config from parsed CLI flags.
func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			SecretKey:        cmd.String("secret-key"),
			AccessTokenTTL:   time.Duration(cmd.Int("access-token-ttl")) * time.Minute,
			RefreshTokenTTL:  time.Duration(cmd.Int("refresh-token-ttl")) * 24 * time.Hour,
			TwoFactorIssuer:  cmd.String("two-factor-issuer"),
			CookieSessions:   cmd.Bool("cookie-sessions"),
			CookieName:       cmd.String("cookie-name"),
			CookieSecure:     cmd.Bool("cookie-secure"),
			CookieHashKey:    cmd.String("cookie-hash-key"),
			CookieBlockKey:   cmd.String("cookie-block-key"),
			RegistrationOpen: cmd.Bool("registration-open"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       cmd.Bool("rate-limit"),
			RedisURL:      cmd.String("redis-url"),
			LoginAttempts: int(cmd.Int("rate-limit-attempts")),
			LoginWindow:   time.Duration(cmd.Int("rate-limit-window")) * time.Second,
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if cfg.Auth.CookieSecure {
		scheme = "https"
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

// Flags returns all CLI flags with env var and TOML fallbacks.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Value:   "change-me",
			Usage:   "Secret key for token signing and secret encryption",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("auth.secret_key", configFile)),
		},
		&cli.IntFlag{
			Name:    "access-token-ttl",
			Value:   60,
			Usage:   "Access token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("auth.access_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "refresh-token-ttl",
			Value:   30,
			Usage:   "Refresh token lifetime in days",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_TOKEN_TTL"), toml.TOML("auth.refresh_token_ttl", configFile)),
		},
		&cli.StringFlag{
			Name:    "two-factor-issuer",
			Value:   "STEM-ED-ARCHITECTS",
			Usage:   "Issuer name shown in authenticator apps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TWO_FACTOR_ISSUER"), toml.TOML("auth.two_factor_issuer", configFile)),
		},
		&cli.BoolFlag{
			Name:    "cookie-sessions",
			Usage:   "Mirror tokens into httpOnly cookies",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_SESSIONS"), toml.TOML("auth.cookie_sessions", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_NAME"), toml.TOML("auth.cookie_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "cookie-secure",
			Usage:   "HTTPS-only cookies",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_SECURE"), toml.TOML("auth.cookie_secure", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-hash-key",
			Usage:   "Session cookie hash key (32-byte hex)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_HASH_KEY"), toml.TOML("auth.cookie_hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-block-key",
			Usage:   "Session cookie block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_BLOCK_KEY"), toml.TOML("auth.cookie_block_key", configFile)),
		},
		&cli.BoolFlag{
			Name:    "registration-open",
			Value:   true,
			Usage:   "Allow self-service registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REGISTRATION_OPEN"), toml.TOML("auth.registration_open", configFile)),
		},
		&cli.BoolFlag{
			Name:    "rate-limit",
			Value:   true,
			Usage:   "Enable login rate limiting",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT"), toml.TOML("rate_limit.enabled", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the shared rate limiter (empty selects the in-process fallback)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("rate_limit.redis_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-attempts",
			Value:   5,
			Usage:   "Login attempts allowed per window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_ATTEMPTS"), toml.TOML("rate_limit.attempts", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-window",
			Value:   300,
			Usage:   "Login rate limit window in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_WINDOW"), toml.TOML("rate_limit.window", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (empty disables email delivery)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "From address for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "From display name for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
	}
}
