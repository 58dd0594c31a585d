package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/boom", func(c *fiber.Ctx) error { return err })

	resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestErrorHandlerAppError(t *testing.T) {
	status, body := serve(t, NotFound("user does not exist"))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NotFoundException", body["app_exception"])
	require.Equal(t, "user does not exist", body["errorMessage"])
}

func TestErrorHandlerValidationFields(t *testing.T) {
	status, body := serve(t, Validation(map[string]string{"phone_number": "Missing data for required field."}))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "ValidationException", body["app_exception"])

	fields := body["errorMessage"].(map[string]interface{})
	require.Equal(t, "Missing data for required field.", fields["phone_number"])
}

func TestErrorHandlerKeycloakStatusPassthrough(t *testing.T) {
	status, body := serve(t, Keycloak("User exists with same username", http.StatusConflict))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "KeyCloakAdminException", body["app_exception"])

	status, _ = serve(t, Keycloak("no status from provider", 0))
	require.Equal(t, http.StatusBadRequest, status)
}

func TestErrorHandlerFiberError(t *testing.T) {
	status, body := serve(t, fiber.ErrMethodNotAllowed)
	require.Equal(t, http.StatusMethodNotAllowed, status)
	require.Equal(t, "HTTPError", body["app_exception"])
}

func TestErrorHandlerUnknownError(t *testing.T) {
	status, body := serve(t, errors.New("sql: database is closed"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "InternalServerError", body["app_exception"])
	require.Equal(t, "internal server error", body["errorMessage"])
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, "identity provider unreachable")

	require.ErrorIs(t, err, cause)

	appErr, ok := As(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	require.Equal(t, KindOperationError, appErr.Kind)
}
