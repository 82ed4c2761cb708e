package socket

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// 错误码（对客户端可见）
const (
	CodeValidation      = "WS_VALIDATION_ERROR"
	CodeAuth            = "WS_AUTH_ERROR"
	CodeMiddleware      = "WS_MIDDLEWARE_ERROR"
	CodeHandlerNotFound = "WS_HANDLER_NOT_FOUND"
	CodeAckValidation   = "WS_ACK_VALIDATION_ERROR"
	CodeInternal        = "WS_INTERNAL_ERROR"
	CodeDefault         = "WS_ERROR"
)

// 认证失败提示语
const (
	MsgNoToken       = "No authentication token provided"
	MsgTokenExpired  = "Authentication token has expired"
	MsgTokenInvalid  = "Invalid authentication token"
	MsgAuthFailed    = "Authentication failed"
	MsgAuthRequired  = "Authentication required for this event"
	MsgMiddlewareRej = "Middleware rejected the request"
)

// 哨兵错误
var (
	// 连接相关
	ErrTooManyConnections = errors.New("socket: too many connections")
	ErrConnectionClosed   = errors.New("socket: connection closed")
	ErrSendQueueFull      = errors.New("socket: send queue full")
	ErrConnNotFound       = errors.New("socket: connection not found")
	ErrRoomFull           = errors.New("socket: room is full")

	// 注册相关
	ErrNamespaceExists   = errors.New("socket: namespace already registered")
	ErrNamespaceNotFound = errors.New("socket: namespace not found")
	ErrAlreadyBound      = errors.New("socket: events already bound for connection")
	ErrInvalidConfig     = errors.New("socket: invalid config")

	// 令牌校验（由 TokenVerifier 实现包装返回）
	ErrTokenExpired = errors.New("socket: token expired")
	ErrTokenInvalid = errors.New("socket: token invalid")
)

// Error 可转换为错误信封的 socket 错误
type Error interface {
	error
	Code() string
	// Operational 为 true 表示客户端可预期的错误（记录 warn），否则记录 error
	Operational() bool
}

// Issue 单个字段的校验问题
type Issue struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// ValidationError 入参校验失败
type ValidationError struct {
	Event   string
	Message string
	Details []Issue
}

func (e *ValidationError) Error() string     { return e.Message }
func (e *ValidationError) Code() string      { return CodeValidation }
func (e *ValidationError) Operational() bool { return true }

// AckValidationError 应答数据不符合声明的 schema
type AckValidationError struct {
	Event   string
	Message string
	Details []Issue
}

func (e *AckValidationError) Error() string     { return e.Message }
func (e *AckValidationError) Code() string      { return CodeAckValidation }
func (e *AckValidationError) Operational() bool { return false }

// AuthError 认证失败
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string     { return e.Message }
func (e *AuthError) Unwrap() error     { return e.Err }
func (e *AuthError) Code() string      { return CodeAuth }
func (e *AuthError) Operational() bool { return true }

// MiddlewareError 中间件拒绝
type MiddlewareError struct {
	Event   string
	Message string
	Err     error
}

func (e *MiddlewareError) Error() string     { return e.Message }
func (e *MiddlewareError) Unwrap() error     { return e.Err }
func (e *MiddlewareError) Code() string      { return CodeMiddleware }
func (e *MiddlewareError) Operational() bool { return true }

// HandlerNotFoundError 事件元数据存在但未绑定处理函数
type HandlerNotFoundError struct {
	Event  string
	Method string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("Handler %q not found for event %q", e.Method, e.Event)
}
func (e *HandlerNotFoundError) Code() string      { return CodeHandlerNotFound }
func (e *HandlerNotFoundError) Operational() bool { return false }

// HandlerError 处理函数返回的业务错误，消息原样返回给客户端
type HandlerError struct {
	ErrCode string
	Message string
}

// NewHandlerError 创建业务错误；code 为空时使用 WS_ERROR
func NewHandlerError(code, message string) *HandlerError {
	return &HandlerError{ErrCode: code, Message: message}
}

func (e *HandlerError) Error() string { return e.Message }
func (e *HandlerError) Code() string {
	if e.ErrCode == "" {
		return CodeDefault
	}
	return e.ErrCode
}
func (e *HandlerError) Operational() bool { return true }

// InternalError 未预期的错误
type InternalError struct {
	Err   error
	Stack string
}

// NewInternalError 包装错误并记录调用栈
func NewInternalError(err error) *InternalError {
	return &InternalError{Err: err, Stack: string(debug.Stack())}
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "Internal server error"
	}
	return e.Err.Error()
}
func (e *InternalError) Unwrap() error     { return e.Err }
func (e *InternalError) Code() string      { return CodeInternal }
func (e *InternalError) Operational() bool { return false }

// PanicError 监听器内 panic 的恢复值
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// normalize 将任意错误归一化为 socket.Error
func normalize(err error) Error {
	var se Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, ErrTokenExpired) {
		return &AuthError{Message: MsgTokenExpired, Err: err}
	}
	if errors.Is(err, ErrTokenInvalid) {
		return &AuthError{Message: MsgTokenInvalid, Err: err}
	}
	if looksLikeCredentialFailure(err) {
		return &AuthError{Message: MsgAuthFailed, Err: err}
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return &InternalError{Err: err, Stack: pe.Stack}
	}
	return NewInternalError(err)
}

// looksLikeCredentialFailure 上游令牌库未包装的错误按消息识别
func looksLikeCredentialFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "jwt") || strings.Contains(msg, "token is")
}
