package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/service"
)

// Error is a request-level failure detected before reaching the service layer
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps an error to its HTTP status
func statusOf(err error) int {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrCapacityExceeded):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrEmptyArchive), errors.Is(err, service.ErrBlobMissing):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as {"error": message} with the mapped status
func (r *Router) writeError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := service.Message(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}
