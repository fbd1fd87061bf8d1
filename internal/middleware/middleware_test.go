package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(auth *AuthMiddleware, handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	chain := append([]fiber.Handler{auth.Authenticate()}, handlers...)
	chain = append(chain, func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})
	app.Get("/", chain...)
	return app
}

func get(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func TestAuthDisabled(t *testing.T) {
	app := newApp(NewAuthMiddleware("", false))
	status, _ := get(t, app, "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAuthWithoutSecret(t *testing.T) {
	app := newApp(NewAuthMiddleware("", true))
	status, _ := get(t, app, "anything")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAuthTokens(t *testing.T) {
	auth := NewAuthMiddleware("secret", true)
	app := newApp(auth)

	token, err := auth.GenerateToken("user-7", "u@example.com", time.Hour)
	require.NoError(t, err)
	status, body := get(t, app, token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user-7", body)

	expired, err := auth.GenerateToken("user-7", "u@example.com", -time.Hour)
	require.NoError(t, err)
	// a negative ttl is treated as no expiry
	status, _ = get(t, app, expired)
	assert.Equal(t, fiber.StatusOK, status)

	other, err := NewAuthMiddleware("other", true).GenerateToken("user-7", "", 0)
	require.NoError(t, err)
	status, _ = get(t, app, other)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		UserID:           "user-7",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	signed, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)
	status, _ = get(t, app, signed)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	past := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		UserID: "user-7",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err = past.SignedString([]byte("secret"))
	require.NoError(t, err)
	status, _ = get(t, app, signed)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMemoryRateLimit(t *testing.T) {
	rl := NewRateLimiter(nil, nil)
	app := newApp(NewAuthMiddleware("", false), rl.ExecuteLimit(2))

	for i := 0; i < 2; i++ {
		status, _ := get(t, app, "")
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body := get(t, app, "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Contains(t, body, "RATE_LIMITED")
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimiter(nil, nil)
	app := newApp(NewAuthMiddleware("", false), rl.GenerateLimit(0))

	for i := 0; i < 5; i++ {
		status, _ := get(t, app, "")
		require.Equal(t, fiber.StatusOK, status)
	}
}
