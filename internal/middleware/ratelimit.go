package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limit per IP across the API
	GlobalAPIMax int

	// Interview creation per IP; each start holds a session in memory
	SessionStartMax int

	// Interview turns per candidate
	SubmitMax int

	// Data-subject requests (view, export, delete) per candidate
	DataAccessMax int

	// WebSocket connection attempts per IP
	WebSocketMax int

	Expiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:    200,
		SessionStartMax: 10,
		SubmitMax:       60,
		DataAccessMax:   20,
		WebSocketMax:    20,
		Expiration:      1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig(environment string) *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrides := map[string]*int{
		"RATE_LIMIT_GLOBAL_API":    &config.GlobalAPIMax,
		"RATE_LIMIT_SESSION_START": &config.SessionStartMax,
		"RATE_LIMIT_SUBMIT":        &config.SubmitMax,
		"RATE_LIMIT_DATA_ACCESS":   &config.DataAccessMax,
		"RATE_LIMIT_WEBSOCKET":     &config.WebSocketMax,
	}
	for env, dst := range overrides {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	// Development mode: more lenient limits
	if environment == "development" {
		config.GlobalAPIMax = 1000
		config.SessionStartMax = 100
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func newLimiter(scope string, max int, expiration time.Duration, key func(c *fiber.Ctx) string, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return scope + ":" + key(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for %s on %s", scope, key(c), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       message,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}

func byIP(c *fiber.Ctx) string { return c.IP() }

// byCandidate keys on the authenticated candidate, falling back to IP
func byCandidate(c *fiber.Ctx) string {
	if id := CandidateID(c); id != "" {
		return id
	}
	return c.IP()
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("global", config.GlobalAPIMax, config.Expiration, byIP, "Too many requests. Please slow down.")
}

// SessionStartRateLimiter limits how fast one client can open interviews
func SessionStartRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("session-start", config.SessionStartMax, config.Expiration, byIP, "Too many interviews started. Please wait before starting another.")
}

// SubmitRateLimiter limits interview turns per candidate
func SubmitRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("submit", config.SubmitMax, config.Expiration, byCandidate, "You are sending messages too quickly. Please wait a moment.")
}

// DataAccessRateLimiter limits data-subject requests per candidate
func DataAccessRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("data-access", config.DataAccessMax, config.Expiration, byCandidate, "Too many data requests. Please wait before trying again.")
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("ws", config.WebSocketMax, config.Expiration, byIP, "Too many connection attempts. Please wait before reconnecting.")
}
