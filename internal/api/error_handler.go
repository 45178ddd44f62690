package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progenxxx/hris-sub006/internal/service"
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

// ErrorHandlerMiddleware 错误处理中间件,处理 handler 通过 c.Error 抛出的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		RespondError(c, c.Errors.Last().Err)
	}
}

// RespondError 将服务层错误映射为 HTTP 响应
//
//	FieldErrors  -> 422 + errors
//	ErrNotFound  -> 404
//	ErrForbidden -> 403
//	ErrConflict  -> 409
func RespondError(c *gin.Context, err error) {
	var apiErr *APIError
	var fieldErr *service.FieldErrors
	switch {
	case errors.As(err, &apiErr):
		Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
	case errors.As(err, &fieldErr):
		ValidationFailed(c, T(c, "error.validation"), fieldErr.Fields)
	case errors.Is(err, service.ErrNotFound):
		Error(c, http.StatusNotFound, T(c, "error.not_found"), err.Error())
	case errors.Is(err, service.ErrForbidden):
		Error(c, http.StatusForbidden, T(c, "error.forbidden"), err.Error())
	case errors.Is(err, service.ErrConflict):
		Error(c, http.StatusConflict, T(c, "error.conflict"), err.Error())
	default:
		GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("request failed")
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
	}
	c.Abort()
}
