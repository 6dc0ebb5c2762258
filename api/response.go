package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/artifacts"
	"github.com/xiaoyuanzhu-com/omnitool/prefs"
	"github.com/xiaoyuanzhu-com/omnitool/session"
	"github.com/xiaoyuanzhu-com/omnitool/shell"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
)

// =============================================================================
// Standard API Response Types
// =============================================================================
//
// All endpoints answer with {"data": ...} on success and
// {"error": {"code", "message"}} on failure. Messages are safe to show to
// the user as is.

// ErrorCode defines standard error codes for programmatic handling
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest           ErrorCode = "BAD_REQUEST"           // 400 - Malformed request
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"      // 400 - Validation failed
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"             // 404 - Resource not found
	ErrCodeConflict             ErrorCode = "CONFLICT"              // 409 - Wrong state for the request
	ErrCodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED" // 428 - Destructive action not confirmed
	ErrCodeTooLarge             ErrorCode = "TOO_LARGE"             // 413 - Upload over the limit

	// Server errors (5xx)
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"      // 500 - Unexpected error
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503 - Processing service failed
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`    // Machine-readable error code
		Message string    `json:"message"` // Human-readable error message
	} `json:"error"`
}

// DataResponse wraps a single resource or object response
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// RespondData sends a successful response with a single data object
// Status: 200 OK
func RespondData[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse[T]{Data: data})
}

// RespondList sends a list, never null.
func RespondList[T any](c *gin.Context, data []T) {
	if data == nil {
		data = []T{}
	}
	c.JSON(http.StatusOK, DataResponse[[]T]{Data: data})
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondAccepted sends a 202 Accepted response for a started operation
// and points Location at its status.
func RespondAccepted(c *gin.Context, op *tools.Operation) {
	c.Header("Location", "/api/operations/"+op.ID())
	c.JSON(http.StatusAccepted, DataResponse[tools.Status]{Data: op.Status()})
}

// respondError is the internal helper for error responses
func respondError(c *gin.Context, status int, code ErrorCode, message string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	c.AbortWithStatusJSON(status, resp)
}

// RespondBadRequest sends a 400 Bad Request error
func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// RespondNotFound sends a 404 Not Found error
func RespondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// RespondInternalError sends a 500 Internal Server Error
func RespondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternal, message)
}

// RespondError maps a component error to status, code and user message.
func RespondError(c *gin.Context, err error) {
	var se *tools.ServiceError
	switch {
	case errors.Is(err, shell.ErrConfirmationRequired):
		respondError(c, http.StatusPreconditionRequired, ErrCodeConfirmationRequired, err.Error())
	case errors.Is(err, tools.ErrInvalidInput),
		errors.Is(err, tools.ErrUnknownTool),
		errors.Is(err, prefs.ErrInvalidTheme):
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, session.ErrNotScanning):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, artifacts.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "File is no longer available.")
	case errors.As(err, &se):
		respondError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, se.UserMessage())
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, tools.UserMessage(err))
	}
}
