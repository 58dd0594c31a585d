package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/config"
	"github.com/example/distributor-server/internal/middleware"
	"github.com/example/distributor-server/internal/utils"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, username string, roles []string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"aud":                utils.TokenAudience,
		"exp":                expiresAt.Unix(),
		"preferred_username": username,
		"realm_access":       map[string]interface{}{"roles": roles},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newApp(endpoint string, otherRoles ...string) *fiber.App {
	cfg := &config.Config{
		ServiceName:  "distributor",
		JWTPublicKey: testSecret,
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperrors.ErrorHandler(zap.NewNop())})
	app.Get("/protected", middleware.AuthRole(cfg, endpoint, otherRoles...), func(c *fiber.Ctx) error {
		username, _ := middleware.PreferredUsername(c)
		return c.JSON(fiber.Map{"username": username})
	})
	return app
}

func request(t *testing.T, app *fiber.App, authHeader string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(fiber.HeaderAuthorization, authHeader)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestAuthRoleMissingHeader(t *testing.T) {
	status, body := request(t, newApp("show_employee"), "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Missing authentication token", body["errorMessage"])
}

func TestAuthRoleMalformedHeader(t *testing.T) {
	status, _ := request(t, newApp("show_employee"), "Token abc")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthRoleInvalidToken(t *testing.T) {
	status, body := request(t, newApp("show_employee"), "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Unauthorized", body["app_exception"])
}

func TestAuthRoleExpiredToken(t *testing.T) {
	token := mintToken(t, "john", []string{"distributor_show_employee"}, time.Now().Add(-time.Minute))

	status, body := request(t, newApp("show_employee"), "Bearer "+token)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "ExpiredTokenException", body["app_exception"])
}

func TestAuthRoleWrongRole(t *testing.T) {
	token := mintToken(t, "john", []string{"distributor_delete_employee"}, time.Now().Add(time.Hour))

	status, body := request(t, newApp("show_employee"), "Bearer "+token)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Unauthorized", body["errorMessage"])
}

func TestAuthRoleGeneratedRole(t *testing.T) {
	token := mintToken(t, "john", []string{"distributor_show_employee"}, time.Now().Add(time.Hour))

	status, body := request(t, newApp("show_employee"), "Bearer "+token)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "john", body["username"])
}

func TestAuthRoleAlternateRoles(t *testing.T) {
	app := newApp("show_employee", "admin|auditor")

	token := mintToken(t, "jane", []string{"auditor"}, time.Now().Add(time.Hour))
	status, _ := request(t, app, "Bearer "+token)
	require.Equal(t, http.StatusOK, status)

	token = mintToken(t, "jane", []string{"intruder"}, time.Now().Add(time.Hour))
	status, _ = request(t, app, "Bearer "+token)
	require.Equal(t, http.StatusForbidden, status)
}
