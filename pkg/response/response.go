package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeDuplicateResource  = "DUPLICATE_RESOURCE"
	ErrCodePolicyViolation    = "POLICY_VIOLATION"
	ErrCodeIdempotence        = "IDEMPOTENCE_VIOLATION"
	ErrCodeIllegalTransition  = "ILLEGAL_TRANSITION"
	ErrCodeCircuitBreakerOpen = "CIRCUIT_BREAKER_OPEN"
	ErrCodeTradingHalted      = "TRADING_HALTED"
	ErrCodeExecutionFault     = "EXECUTION_FAULT"
)

// Handle processes the error and returns the appropriate response.
// Domain-specific conditions are mapped by the handlers that know them;
// this covers persistence-level errors and the generic fallback.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, ErrCodeDuplicateResource, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// Fail sends an error response with the given HTTP status and domain code
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// UnprocessableEntity sends a 422 response with a domain error code
func UnprocessableEntity(c *gin.Context, code, message string) {
	Fail(c, http.StatusUnprocessableEntity, code, message)
}

// Conflict sends a 409 response with a domain error code
func Conflict(c *gin.Context, code, message string) {
	Fail(c, http.StatusConflict, code, message)
}

// ServiceUnavailable sends a 503 response with a domain error code
func ServiceUnavailable(c *gin.Context, code, message string) {
	Fail(c, http.StatusServiceUnavailable, code, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}
