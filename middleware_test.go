// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareApp(t *testing.T, opts MiddlewareOptions) (*fiber.App, *bytes.Buffer) {
	t.Helper()

	buffer := &bytes.Buffer{}
	logger := NewLogger(buffer)
	logger.SetLevel(DEBUG)

	app := fiber.New()
	app.Use(RequestMiddlewareLogger(logger, opts))
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString("hello")
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusTeapot)
	})
	app.Get("/fail", func(*fiber.Ctx) error {
		return fiber.NewError(http.StatusInternalServerError, "everything is on fire")
	})
	return app, buffer
}

func TestRequestMiddlewareLogger(t *testing.T) {
	t.Parallel()

	t.Run("two lines per request", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		out := buffer.String()
		assert.Equal(t, 2, strings.Count(out, "\n"))
		assert.Contains(t, out, `"@level":"debug"`)
		assert.Contains(t, out, `"@level":"info"`)
		assert.Contains(t, out, "GET /ok")
		assert.Contains(t, out, `"http_info"`)
		assert.Contains(t, out, `"status_code":200`)
	})

	t.Run("completion level tracks the status code", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusTeapot, resp.StatusCode)
		assert.Contains(t, buffer.String(), `"@level":"warn"`)

		buffer.Reset()
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, buffer.String(), `"@level":"error"`)
		assert.Contains(t, buffer.String(), `"status_code":500`)
	})

	t.Run("request and process time headers are set", func(t *testing.T) {
		t.Parallel()

		app, _ := newMiddlewareApp(t, MiddlewareOptions{})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
		require.NoError(t, err)

		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
		assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))
	})

	t.Run("incoming request id is propagated", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{})
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Request-Id", "req-42")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, "req-42", resp.Header.Get("X-Request-Id"))
		assert.Contains(t, buffer.String(), "req-42")
	})

	t.Run("excluded prefixes are not logged", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{ExcludedPrefixes: []string{"/teapot"}})
		_, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
		require.NoError(t, err)

		assert.Empty(t, buffer.String())
	})

	t.Run("proxy headers override the client host", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{HasProxyHeaders: true})
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

		_, err := app.Test(req)
		require.NoError(t, err)
		assert.Contains(t, buffer.String(), "203.0.113.9")
	})

	t.Run("query string is part of the logged path", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{})
		_, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok?page=2", nil))
		require.NoError(t, err)

		assert.Contains(t, buffer.String(), "/ok?page=2")
	})

	t.Run("broken template falls back to a minimal line", func(t *testing.T) {
		t.Parallel()

		app, buffer := newMiddlewareApp(t, MiddlewareOptions{MsgFormat: "{method} {no_such_field}"})
		_, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
		require.NoError(t, err)

		assert.Contains(t, buffer.String(), "GET /ok -> 200")
	})
}

func TestLevelForStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DEBUG, levelForStatus(102))
	assert.Equal(t, INFO, levelForStatus(200))
	assert.Equal(t, INFO, levelForStatus(302))
	assert.Equal(t, WARN, levelForStatus(404))
	assert.Equal(t, ERROR, levelForStatus(500))
	assert.Equal(t, ERROR, levelForStatus(503))
}

func TestRoundMillis(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.2, roundMillis(1.24))
	assert.Equal(t, 1.3, roundMillis(1.25))
	assert.Equal(t, 0.0, roundMillis(0))
}
