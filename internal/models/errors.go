package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to callers. Validation codes resolve locally before
// any network call; the rest map onto persistence, storage or transport
// failures.
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeInvalidFile      = "INVALID_FILE"
	CodeTooLarge         = "TOO_LARGE"
	CodeEmptyMessage     = "EMPTY_MESSAGE"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeSendFailed       = "SEND_FAILED"
	CodeBackend          = "BACKEND_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the application error code, or BACKEND_ERROR for
// unclassified errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeBackend
}

// Predefined error constructors

func NewNotAuthenticatedError() *AppError {
	return &AppError{
		Code:    CodeNotAuthenticated,
		Message: "User not authenticated",
	}
}

func NewInvalidFileError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidFile,
		Message: message,
	}
}

func NewTooLargeError(maxMB int) *AppError {
	return &AppError{
		Code:    CodeTooLarge,
		Message: fmt.Sprintf("File too large (max %dMB)", maxMB),
	}
}

func NewEmptyMessageError() *AppError {
	return &AppError{
		Code:    CodeEmptyMessage,
		Message: "Message must have text or an attachment",
	}
}

func NewUploadFailedError(err error) *AppError {
	return &AppError{
		Code:    CodeUploadFailed,
		Message: "Failed to upload image",
		Err:     err,
	}
}

func NewSendFailedError(err error) *AppError {
	return &AppError{
		Code:    CodeSendFailed,
		Message: "Failed to send message",
		Err:     err,
	}
}

func NewBackendError(err error) *AppError {
	return &AppError{
		Code:    CodeBackend,
		Message: "Persistence operation failed",
		Err:     err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// StatusForError maps an application error to an HTTP status code.
func StatusForError(err error) int {
	switch CodeOf(err) {
	case CodeNotAuthenticated:
		return fiber.StatusUnauthorized
	case CodeUnauthorized:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidFile, CodeEmptyMessage, CodeValidation:
		return fiber.StatusBadRequest
	case CodeTooLarge:
		return fiber.StatusRequestEntityTooLarge
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
