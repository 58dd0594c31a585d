package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Kind identifies the failure class carried by an AppError.
type Kind string

const (
	KindOperationError Kind = "OperationError"
	KindInternalServer Kind = "InternalServerError"
	KindResourceExists Kind = "ResourceExists"
	KindNotFound       Kind = "NotFoundException"
	KindUnauthorized   Kind = "Unauthorized"
	KindValidation     Kind = "ValidationException"
	KindKeycloak       Kind = "KeyCloakAdminException"
	KindBadRequest     Kind = "BadRequest"
	KindExpiredToken   Kind = "ExpiredTokenException"
)

// AppError is the application error type translated by ErrorHandler.
// Context is either a message string or a field→message map for
// validation failures.
type AppError struct {
	Kind    Kind
	Status  int
	Context interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %v: %v", e.Kind, e.Status, e.Context, e.Err)
	}
	return fmt.Sprintf("%s (%d): %v", e.Kind, e.Status, e.Context)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// OperationError wraps an unexpected failure as a 500.
func OperationError(context interface{}) *AppError {
	return &AppError{Kind: KindOperationError, Status: fiber.StatusInternalServerError, Context: context}
}

// Wrap attaches an underlying error to a 500 operation error.
func Wrap(err error, context interface{}) *AppError {
	return &AppError{Kind: KindOperationError, Status: fiber.StatusInternalServerError, Context: context, Err: err}
}

// ResourceExists reports a duplicate unique key.
func ResourceExists(context interface{}) *AppError {
	return &AppError{Kind: KindResourceExists, Status: fiber.StatusBadRequest, Context: context}
}

// NotFound reports a missing resource.
func NotFound(context interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Status: fiber.StatusNotFound, Context: context}
}

// Unauthorized reports a missing or invalid authentication token.
func Unauthorized(context interface{}) *AppError {
	return &AppError{Kind: KindUnauthorized, Status: fiber.StatusUnauthorized, Context: context}
}

// Forbidden reports an authenticated caller lacking the required role.
func Forbidden() *AppError {
	return &AppError{Kind: KindUnauthorized, Status: fiber.StatusForbidden, Context: "Unauthorized"}
}

// Validation reports malformed request fields with per-field messages.
func Validation(fields map[string]string) *AppError {
	return &AppError{Kind: KindValidation, Status: fiber.StatusBadRequest, Context: fields}
}

// Keycloak reports a non-2xx answer from the identity provider, carrying
// the provider's status code through to the client.
func Keycloak(context interface{}, status int) *AppError {
	if status == 0 {
		status = fiber.StatusBadRequest
	}
	return &AppError{Kind: KindKeycloak, Status: status, Context: context}
}

// BadRequest reports a request the service refuses to process.
func BadRequest(context interface{}) *AppError {
	return &AppError{Kind: KindBadRequest, Status: fiber.StatusBadRequest, Context: context}
}

// ExpiredToken reports an expired bearer or reset token.
func ExpiredToken(context interface{}) *AppError {
	return &AppError{Kind: KindExpiredToken, Status: fiber.StatusBadRequest, Context: context}
}

// As extracts an *AppError from err.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type errorBody struct {
	AppException string      `json:"app_exception"`
	ErrorMessage interface{} `json:"errorMessage"`
}

// ErrorHandler is the single top-level translator mapping any error to a
// response status and JSON body. Nothing leaks raw to the boundary.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr, ok := As(err); ok {
			if appErr.Status >= fiber.StatusInternalServerError {
				log.Error("request failed", zap.Error(err))
			}
			return c.Status(appErr.Status).JSON(errorBody{
				AppException: string(appErr.Kind),
				ErrorMessage: appErr.Context,
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(errorBody{
				AppException: "HTTPError",
				ErrorMessage: fiberErr.Message,
			})
		}

		log.Error("unhandled error", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{
			AppException: string(KindInternalServer),
			ErrorMessage: "internal server error",
		})
	}
}
