package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collabhub/realtime/internal/config"
)

func TestStandardMiddleware(t *testing.T) {
	cfg := &config.Config{
		RateLimitAPIGlobal:   "100-M",
		RateLimitAPIPublic:   "100-M",
		RateLimitAPIRooms:    "50-M",
		RateLimitAPIMessages: "200-M",
		RateLimitWSIP:        "50-M",
		RateLimitWSUser:      "100-M",
	}

	rl, err := NewRateLimiter(cfg, nil)
	assert.NoError(t, err)

	// Get standard middleware
	middleware := rl.StandardMiddleware()
	assert.NotNil(t, middleware)
}
