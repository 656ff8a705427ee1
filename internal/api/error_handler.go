package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/repository"
	"github.com/mautops/turk-gin/internal/tasks"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				Error(c, http.StatusInternalServerError, "internal server error", err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusFor 把领域错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var reqErr *marketplace.RequestError
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, marketplace.ErrNotFound),
		errors.Is(err, tasks.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, marketplace.ErrMissingParam),
		errors.Is(err, marketplace.ErrMissingAnswer),
		errors.Is(err, marketplace.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, marketplace.ErrHITMustBeReviewed),
		errors.Is(err, marketplace.ErrInvalidStatus),
		errors.Is(err, marketplace.ErrInconsistentCounters),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrConcurrentUpdate),
		errors.Is(err, lifecycle.ErrUnknownStatus):
		return http.StatusConflict
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleError 以映射后的状态码响应错误
func handleError(c *gin.Context, err error, operation string) {
	_ = c.Error(err)
	Error(c, StatusFor(err), "failed to "+operation, err.Error())
}
