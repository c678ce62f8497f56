package router

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type demo struct{}

func (demo) Prefix() string { return "/api/demo" }

func (demo) Routes() []Route {
	guard := func(c *fiber.Ctx) error {
		if c.Get("X-Pass") == "" {
			return c.SendStatus(fiber.StatusForbidden)
		}
		return c.Next()
	}
	return []Route{
		{Method: fiber.MethodGet, Path: "/open", Handler: text("open")},
		{Method: fiber.MethodGet, Path: "/guarded", Handler: text("guarded"), Middlewares: []fiber.Handler{guard}},
		{Method: fiber.MethodPost, Path: "/api/demo/full", Handler: text("full")},
	}
}

func text(s string) fiber.Handler {
	return func(c *fiber.Ctx) error { return c.SendString(s) }
}

func TestRegister(t *testing.T) {
	app := fiber.New()
	Register(app, demo{})

	get := func(method, path string, pass bool) (int, string) {
		req := httptest.NewRequest(method, path, nil)
		if pass {
			req.Header.Set("X-Pass", "1")
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	status, body := get(fiber.MethodGet, "/api/demo/open", false)
	assert.Equal(t, 200, status)
	assert.Equal(t, "open", body)

	status, _ = get(fiber.MethodGet, "/api/demo/guarded", false)
	assert.Equal(t, 403, status)
	status, body = get(fiber.MethodGet, "/api/demo/guarded", true)
	assert.Equal(t, 200, status)
	assert.Equal(t, "guarded", body)

	status, body = get(fiber.MethodPost, "/api/demo/full", false)
	assert.Equal(t, 200, status)
	assert.Equal(t, "full", body)
}
