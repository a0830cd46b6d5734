// Package apperr 定义接口统一错误码，每个错误码绑定一个 HTTP 状态。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是对外稳定的错误码字符串，调用方只需按 code 分支。
type Code string

const (
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "RESOURCE_NOT_FOUND"
	CodePreset      Code = "PRESET_ERROR"
	CodeProduct     Code = "PRODUCT_ERROR"
	CodeDatabase    Code = "DATABASE_ERROR"
	CodeRateLimited Code = "RATE_LIMIT_EXCEEDED"
)

// Status 返回错误码对应的 HTTP 状态。
func (c Code) Status() int {
	switch c {
	case CodeValidation, CodePreset, CodeProduct:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error 是业务流水线返回的结构化错误。
// Detail 面向终端用户（日文），Message 面向调用方（英文）。
type Error struct {
	Code      Code
	Detail    string
	Message   string
	Field     string
	ProductID uint
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status 返回 HTTP 状态。
func (e *Error) Status() int { return e.Code.Status() }

func Validation(field, detail, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Detail: detail, Message: message}
}

func NotFound(detail, message string) *Error {
	return &Error{Code: CodeNotFound, Detail: detail, Message: message}
}

func Preset(detail, message string) *Error {
	return &Error{Code: CodePreset, Detail: detail, Message: message}
}

func Product(productID uint, detail, message string) *Error {
	return &Error{Code: CodeProduct, ProductID: productID, Detail: detail, Message: message}
}

// Database 包装存储层错误；op 描述失败的操作。
func Database(op string, err error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Detail:  "データベースエラーが発生しました",
		Message: "database operation failed: " + op,
		Err:     err,
	}
}

func RateLimited() *Error {
	return &Error{
		Code:    CodeRateLimited,
		Detail:  "リクエストが多すぎます。しばらくしてから再度お試しください",
		Message: "rate limit exceeded",
	}
}

// As 将任意错误转换为 *Error；未知错误按数据库错误处理。
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Database("unexpected", err)
}
