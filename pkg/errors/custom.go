package errors

// 通用错误码 1xxx，各包自定义错误码按千位分段（config 3xxx）
var (
	ErrServer          = New(1000, 500, "服务器异常", nil)
	ErrBadRequest      = New(1001, 400, "请求异常", nil)
	ErrUnauthorized    = New(1002, 401, "授权异常", nil)
	ErrForbidden       = New(1003, 403, "禁止访问", nil)
	ErrNotFound        = New(1004, 404, "资源不存在", nil)
	ErrConflict        = New(1005, 409, "资源冲突", nil)
	ErrTooManyRequests = New(1006, 429, "请求过于频繁", nil)
	ErrUnavailable     = New(1007, 503, "服务不可用", nil)
)
