package catalog

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxBurst = 5

// RateLimits holds one outbound limiter per schema that declares a rate_limit
type RateLimits struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	enabled  bool
}

// NewRateLimits creates an enabled limiter set
func NewRateLimits() *RateLimits {
	return &RateLimits{limiters: make(map[string]*rate.Limiter), enabled: true}
}

// SetEnabled toggles waiting; limiters are still tracked while disabled
func (r *RateLimits) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// Configure replaces the limiter set with one built from the given schemas.
// Schemas missing from the list lose their limiter.
func (r *RateLimits) Configure(schemas []*Schema) {
	limiters := make(map[string]*rate.Limiter, len(schemas))
	for _, s := range schemas {
		if s.RateLimit == "" {
			continue
		}
		limit, burst, err := ParseRateLimit(s.RateLimit)
		if err != nil {
			log.Printf("⚠️ [CATALOG] Ignoring rate limit %q for schema %s: %v", s.RateLimit, s.Key, err)
			continue
		}
		limiters[s.Key] = rate.NewLimiter(limit, burst)
	}

	r.mu.Lock()
	r.limiters = limiters
	r.mu.Unlock()
}

// Wait blocks until the schema's limiter admits one request or ctx ends.
// Schemas without a declared limit never wait.
func (r *RateLimits) Wait(ctx context.Context, schemaKey string) error {
	r.mu.RLock()
	enabled := r.enabled
	limiter, ok := r.limiters[schemaKey]
	r.mu.RUnlock()
	if !enabled || !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Limiter returns the limiter for a schema, if any
func (r *RateLimits) Limiter(schemaKey string) (*rate.Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[schemaKey]
	return l, ok
}

// ParseRateLimit parses declarations like "100/hour", "5/sec" or "450/15min"
func ParseRateLimit(s string) (rate.Limit, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <count>/<window>")
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid count %q", parts[0])
	}

	window := strings.ToLower(strings.TrimSpace(parts[1]))
	multiplier := 1
	i := 0
	for i < len(window) && window[i] >= '0' && window[i] <= '9' {
		i++
	}
	if i > 0 {
		multiplier, _ = strconv.Atoi(window[:i])
		window = window[i:]
	}

	var unit time.Duration
	switch window {
	case "s", "sec", "second", "seconds":
		unit = time.Second
	case "m", "min", "minute", "minutes":
		unit = time.Minute
	case "h", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "month", "months":
		unit = 30 * 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("unknown window %q", parts[1])
	}
	if multiplier <= 0 {
		return 0, 0, fmt.Errorf("invalid window %q", parts[1])
	}

	per := unit * time.Duration(multiplier)
	limit := rate.Limit(float64(count) / per.Seconds())

	burst := count
	if burst > maxBurst {
		burst = maxBurst
	}
	return limit, burst, nil
}
