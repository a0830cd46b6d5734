// Package resp 统一 JSON 响应格式。
package resp

import (
	"net/http"
	"time"

	"pickup_reserve/internal/apperr"

	"github.com/gin-gonic/gin"
)

// TimestampLayout 为 RFC 3339，毫秒精度，UTC。
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Now 可在测试中替换。
var Now = time.Now

func Timestamp() string {
	return Now().UTC().Format(TimestampLayout)
}

type Meta struct {
	Timestamp string `json:"timestamp"`
}

type Success struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Meta    Meta `json:"meta"`
}

type Failure struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Field     string `json:"field,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Success{Success: true, Data: data, Meta: Meta{Timestamp: Timestamp()}})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Success{Success: true, Data: data, Meta: Meta{Timestamp: Timestamp()}})
}

// Fail 按错误码写出错误响应；e 的 Err 不会出现在响应体里。
func Fail(c *gin.Context, e *apperr.Error) {
	c.JSON(e.Status(), failure(e))
}

// Abort 用于中间件：写出错误并终止后续 handler。
func Abort(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(e.Status(), failure(e))
}

func failure(e *apperr.Error) Failure {
	return Failure{
		Error:     e.Detail,
		Code:      string(e.Code),
		Message:   e.Message,
		Timestamp: Timestamp(),
		Field:     e.Field,
	}
}
