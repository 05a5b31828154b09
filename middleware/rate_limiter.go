package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often one client IP may call the daemon
type RateLimitConfig struct {
	// Requests allowed per Window, also the burst size
	Requests int
	Window   time.Duration
	// Idle clients are forgotten after IdleTimeout
	IdleTimeout time.Duration
	// Skip exempts requests, e.g. long-lived websocket upgrades
	Skip func(c *fiber.Ctx) bool
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter creates a rate limiting middleware. Idle clients are
// cleaned up until ctx is done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) fiber.Handler {
	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}

	var (
		clients = make(map[string]*limitedClient)
		mu      sync.Mutex
	)

	go func() {
		ticker := time.NewTicker(cfg.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > cfg.IdleTimeout {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	every := rate.Every(cfg.Window / time.Duration(cfg.Requests))
	retryAfter := strconv.Itoa(int(cfg.Window/time.Duration(cfg.Requests)/time.Second) + 1)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		ip := c.IP()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &limitedClient{limiter: rate.NewLimiter(every, cfg.Requests)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}
