package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"nodelink/internal/config"
)

// RateLimitConfig holds rate limiting settings (requests per window, per IP)
type RateLimitConfig struct {
	GlobalMax  int
	ExecuteMax int
	// WebSocket connection attempts
	WebSocketMax int
	Expiration   time.Duration
}

// NewRateLimitConfig builds limits from the application config.
// Development mode relaxes every limit.
func NewRateLimitConfig(cfg *config.Config) *RateLimitConfig {
	rl := &RateLimitConfig{
		GlobalMax:    positiveOr(cfg.RateLimitGlobal, 300),
		ExecuteMax:   positiveOr(cfg.RateLimitExecute, 60),
		WebSocketMax: positiveOr(cfg.RateLimitWebSocket, 30),
		Expiration:   time.Minute,
	}
	if cfg.Environment == "development" {
		rl.GlobalMax *= 5
		rl.ExecuteMax *= 5
		rl.WebSocketMax *= 5
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return rl
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func newLimiter(prefix string, max int, expiration time.Duration, msg string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP: %s on %s", prefix, c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       msg,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}

// GlobalAPIRateLimiter limits every API request
func GlobalAPIRateLimiter(rl *RateLimitConfig) fiber.Handler {
	return newLimiter("global", rl.GlobalMax, rl.Expiration, "Too many requests. Please slow down.")
}

// ExecuteRateLimiter limits run requests, which call out to third-party APIs
func ExecuteRateLimiter(rl *RateLimitConfig) fiber.Handler {
	return newLimiter("execute", rl.ExecuteMax, rl.Expiration, "Too many runs. Please wait before running again.")
}

// WebSocketRateLimiter limits WebSocket connection attempts
func WebSocketRateLimiter(rl *RateLimitConfig) fiber.Handler {
	return newLimiter("ws", rl.WebSocketMax, rl.Expiration, "Too many connection attempts. Please wait before reconnecting.")
}
