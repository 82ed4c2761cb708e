package marquee

import (
	"net/http"

	"github.com/tokmz/marquee/pkg/errors"
)

// Response HTTP 接口统一信封
// Code 成功时为 200，失败时为 pkg/errors 的业务错误码
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"traceId,omitempty"`
}

// NewResponse 创建响应
func NewResponse(code int, data any, message string) *Response {
	return &Response{Code: code, Data: data, Message: message}
}

// Success 成功信封
func Success(data any) *Response {
	return NewResponse(http.StatusOK, data, "success")
}

// ErrorResponse 按业务错误生成信封与 HTTP 状态码，非业务错误按 ErrServer 处理
func ErrorResponse(err error) (int, *Response) {
	e := errors.Wrap(err, errors.ErrServer)
	return e.HttpCode, NewResponse(e.Code, nil, e.Message)
}

// WithTraceID 附加追踪 ID
func (r *Response) WithTraceID(traceID string) *Response {
	r.TraceID = traceID
	return r
}
