package gateway

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// AppError is the structured error surfaced to callers: a machine-readable
// code plus a human-readable message. Status drives the HTTP response and is
// never serialized.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func InvalidPlatformError(name string) *AppError {
	return &AppError{
		Code:    "INVALID_PLATFORM",
		Status:  400,
		Message: fmt.Sprintf("Invalid platform: %s", name),
	}
}

func ConfigMissingError(platform string) *AppError {
	return &AppError{
		Code:    "CONFIG_MISSING",
		Status:  400,
		Message: fmt.Sprintf("%s config not found. Please configure %s first.", platform, platform),
	}
}

func UpstreamError(msg string) *AppError {
	return &AppError{Code: "UPSTREAM_ERROR", Status: 502, Message: msg}
}

func NotFoundError(id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("File %s not found", id),
	}
}

func RegistryError(msg string) *AppError {
	return &AppError{Code: "REGISTRY_ERROR", Status: 500, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

// UserContext identifies the resolved caller: an interactive session's user
// or the fixed system owner for API-key callers.
type UserContext struct {
	ID       int64
	Username string
}

// CurrentUser extracts the UserContext set by the auth middleware.
func CurrentUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals("user").(*UserContext)
	return user
}
