// Package config validates process environment configuration.
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/config
// (its ValidateEnv). Here the single entry point is Load(getenv, service),
// with accumulated validation errors; no secret redaction is performed.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/collabhub/realtime/internal/logging"
)

// Config holds every environment key recognized anywhere in the system (see
// spec §6). Each binary reads only the fields relevant to it.
type Config struct {
	// Ports. Each service-specific port falls back to PORT, then to its
	// hardcoded default.
	GatewayPort string
	AuthPort    string
	ChatPort    string
	VideoPort   string

	// Gateway upstream targets.
	AuthServiceURL  string
	ChatServiceURL  string
	VideoServiceURL string

	CORSOrigins []string
	LogLevel    string
	Env         string // "development" | "production"

	// Auth0-style token verification (production TokenVerifier).
	Auth0Domain   string
	Auth0Audience string
	SkipAuth      bool

	// IdentityJWTSecret is the HMAC secret this repo's own identity service
	// signs tokens with. An alternative production TokenVerifier path to
	// Auth0Domain/Auth0Audience above, consumed by authn.SharedSecretVerifier.
	IdentityJWTSecret string

	// Distributed bus / rate-limit store.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Store backend.
	FirestoreProjectID string
	FirestoreEmulator  string

	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWSIP        string
	RateLimitWSUser      string
}

// Load reads and validates environment configuration for a given service
// name ("gateway", "chat", "video", "identity"), returning an aggregate error
// naming every problem found.
func Load(getenv func(string) string, service string) (*Config, error) {
	if getenv == nil {
		panic("config.Load: getenv must not be nil")
	}
	cfg := &Config{}
	var problems []string

	cfg.GatewayPort = portOrFallback(getenv, "GATEWAY_PORT", getenv("PORT"), "8080")
	cfg.AuthPort = portOrFallback(getenv, "AUTH_SERVICE_PORT", getenv("PORT"), "8081")
	cfg.ChatPort = portOrFallback(getenv, "CHAT_SERVICE_PORT", getenv("PORT"), "8082")
	cfg.VideoPort = portOrFallback(getenv, "VIDEO_SERVICE_PORT", getenv("PORT"), "8083")

	cfg.AuthServiceURL = firstNonEmpty(getenv("AUTH_SERVICE_URL"), "http://localhost:8081")
	cfg.ChatServiceURL = firstNonEmpty(getenv("CHAT_SERVICE_URL"), "http://localhost:8082")
	cfg.VideoServiceURL = firstNonEmpty(getenv("VIDEO_SERVICE_URL"), "http://localhost:8083")

	if origins := getenv("CORS_ORIGIN"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	cfg.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), "INFO")
	cfg.Env = firstNonEmpty(getenv("APP_ENV"), "production")

	cfg.Auth0Domain = getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = getenv("SKIP_AUTH") == "true"
	cfg.IdentityJWTSecret = getenv("IDENTITY_JWT_SECRET")

	hasAuth0 := cfg.Auth0Domain != "" && cfg.Auth0Audience != ""
	if service != "identity" && !cfg.SkipAuth && !hasAuth0 && cfg.IdentityJWTSecret == "" {
		problems = append(problems, "AUTH0_DOMAIN/AUTH0_AUDIENCE or IDENTITY_JWT_SECRET are required unless SKIP_AUTH=true")
	}
	if service == "identity" && cfg.IdentityJWTSecret == "" {
		if cfg.Env == "production" {
			problems = append(problems, "IDENTITY_JWT_SECRET is required")
		} else {
			cfg.IdentityJWTSecret = "dev-insecure-identity-secret"
			logging.Warn(nil, "IDENTITY_JWT_SECRET not set; using an insecure development default — do not use in production")
		}
	}

	cfg.RedisEnabled = getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = firstNonEmpty(getenv("REDIS_ADDR"), "localhost:6379")
		if !isValidHostPort(cfg.RedisAddr) {
			problems = append(problems, fmt.Sprintf("REDIS_ADDR must be host:port (got %q)", cfg.RedisAddr))
		}
		cfg.RedisPassword = getenv("REDIS_PASSWORD")
	}

	cfg.FirestoreProjectID = getenv("FIRESTORE_PROJECT_ID")
	cfg.FirestoreEmulator = getenv("FIRESTORE_EMULATOR_HOST")
	if (service == "chat" || service == "video") && cfg.FirestoreProjectID == "" && cfg.FirestoreEmulator == "" {
		logging.Warn(nil, "FIRESTORE_PROJECT_ID not set; falling back to the in-memory Store")
	}

	cfg.RateLimitAPIGlobal = firstNonEmpty(getenv("RATE_LIMIT_API_GLOBAL"), "1000-M")
	cfg.RateLimitAPIPublic = firstNonEmpty(getenv("RATE_LIMIT_API_PUBLIC"), "100-M")
	cfg.RateLimitAPIRooms = firstNonEmpty(getenv("RATE_LIMIT_API_ROOMS"), "100-M")
	cfg.RateLimitAPIMessages = firstNonEmpty(getenv("RATE_LIMIT_API_MESSAGES"), "500-M")
	cfg.RateLimitWSIP = firstNonEmpty(getenv("RATE_LIMIT_WS_IP"), "100-M")
	cfg.RateLimitWSUser = firstNonEmpty(getenv("RATE_LIMIT_WS_USER"), "10-M")

	if len(problems) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

func portOrFallback(getenv func(string) string, specific, generic, def string) string {
	if v := getenv(specific); v != "" {
		return v
	}
	if generic != "" {
		return generic
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port > 0 && port <= 65535
}
