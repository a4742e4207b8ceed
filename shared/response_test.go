package shared

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseError(t *testing.T) {
	cases := []struct {
		name       string
		appErr     *AppError
		status     int
		message    string
		retryAfter *int
	}{
		{"rate limited", NewRateLimitExceededError("Slow down", 42), fiber.StatusTooManyRequests, "Slow down", intPtr(42)},
		{"ip blocked", NewIPBlockedError("192.0.2.1"), fiber.StatusForbidden, "Access denied", nil},
		{"unauthenticated", NewAuthenticationError(errors.New("no header"), "Authentication required"), fiber.StatusUnauthorized, "Authentication required", nil},
		{"unauthorized", NewAuthorizationError(nil, "Insufficient permissions"), fiber.StatusForbidden, "Insufficient permissions", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{JSONEncoder: JSONMarshal, JSONDecoder: JSONUnmarshal})
			app.Get("/", func(c *fiber.Ctx) error { return ResponseError(c, tc.appErr) })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var body ErrorBody
			require.NoError(t, JSONUnmarshal(raw, &body))
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.status, body.StatusCode)
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, tc.retryAfter, body.RetryAfter)
		})
	}
}

func TestIPBlockedErrorHidesAddress(t *testing.T) {
	appErr := NewIPBlockedError("192.0.2.1")
	assert.Equal(t, CodeIPBlocked, appErr.Code)
	assert.NotContains(t, appErr.Message, "192.0.2.1")
}

func intPtr(v int) *int {
	return &v
}
