package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-writing-api/internal/observability"
)

func correlationApp(seen *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		*seen = observability.CorrelationID(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestCorrelationIDReusesWellFormedHeader(t *testing.T) {
	var seen string
	app := correlationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "grade-run_42.a")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "grade-run_42.a", resp.Header.Get(CorrelationHeader))
	require.Equal(t, "grade-run_42.a", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-7")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(CorrelationHeader))
}

func TestCorrelationIDReplacesMalformedHeader(t *testing.T) {
	for _, incoming := range []string{"", "two words", strings.Repeat("x", 65), "id\"}{injected"} {
		var seen string
		app := correlationApp(&seen)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if incoming != "" {
			req.Header.Set(CorrelationHeader, incoming)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		_, parseErr := uuid.Parse(seen)
		require.NoError(t, parseErr, incoming)
		require.Equal(t, seen, resp.Header.Get(CorrelationHeader))
	}
}
