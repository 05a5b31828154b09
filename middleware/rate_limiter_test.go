package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedApp(t *testing.T, cfg RateLimitConfig) *fiber.App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app := fiber.New()
	app.Use(RateLimiter(ctx, cfg))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/ws", func(c *fiber.Ctx) error { return c.SendString("ws") })
	return app
}

func status(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func TestRateLimiter_Burst(t *testing.T) {
	app := newLimitedApp(t, RateLimitConfig{Requests: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, status(t, app, "/health").StatusCode)
	}

	resp := status(t, app, "/health")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimiter_Skip(t *testing.T) {
	app := newLimitedApp(t, RateLimitConfig{
		Requests: 1,
		Window:   time.Hour,
		Skip:     func(c *fiber.Ctx) bool { return c.Path() == "/ws" },
	})

	assert.Equal(t, fiber.StatusOK, status(t, app, "/health").StatusCode)
	assert.Equal(t, fiber.StatusTooManyRequests, status(t, app, "/health").StatusCode)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fiber.StatusOK, status(t, app, "/ws").StatusCode)
	}
}
