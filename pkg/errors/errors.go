// Package errors HTTP 接口使用的业务错误：对外暴露 Code 与 Message，原始错误只进日志
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error 业务错误
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	HttpCode int    `json:"-"`
	Err      error  `json:"-"`
}

// New 创建业务错误，httpCode <= 0 时为 500
func New(code, httpCode int, message string, err error) *Error {
	if httpCode <= 0 {
		httpCode = http.StatusInternalServerError
	}
	return &Error{Code: code, HttpCode: httpCode, Message: message, Err: err}
}

// Error 包含原始错误，仅用于日志
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同为 *Error 时按 Code 比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ============ 派生（均返回新实例，预定义错误不被修改） ============

// Clone 复制
func (e *Error) Clone() *Error {
	c := *e
	return &c
}

// WithError 附加原始错误
func (e *Error) WithError(err error) *Error {
	c := e.Clone()
	c.Err = err
	return c
}

// WithMessage 替换对外信息
func (e *Error) WithMessage(message string) *Error {
	c := e.Clone()
	c.Message = message
	return c
}

// Errorf 以格式化的原始错误派生
func (e *Error) Errorf(format string, args ...any) *Error {
	return e.WithError(fmt.Errorf(format, args...))
}

// ============ 判定 ============

// Wrap 链上已有 *Error 时原样返回，否则用 fallback 包装
func Wrap(err error, fallback *Error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return fallback.WithError(err)
}

// Status 错误对应的 HTTP 状态码，非 *Error 为 500
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HttpCode
	}
	return http.StatusInternalServerError
}

// As 同标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 同标准库 errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}
