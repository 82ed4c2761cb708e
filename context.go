package marquee

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/marquee/pkg/logger"
)

// Context 请求上下文
// 只暴露 HTTP 接口与中间件用到的 gin 能力，socket 连接不经过 Context
type Context struct {
	ctx *gin.Context
}

func newContext(c *gin.Context) *Context {
	return &Context{ctx: c}
}

// ============ 请求 ============

// Request 底层 *http.Request
func (c *Context) Request() *http.Request { return c.ctx.Request }

// Writer 底层 ResponseWriter
func (c *Context) Writer() gin.ResponseWriter { return c.ctx.Writer }

// Param 路径参数
func (c *Context) Param(key string) string { return c.ctx.Param(key) }

// FullPath 路由模板，如 /socket/*namespace；未匹配时为空
func (c *Context) FullPath() string { return c.ctx.FullPath() }

// Query 查询参数
func (c *Context) Query(key string) string { return c.ctx.Query(key) }

// ClientIP 客户端 IP，受 TrustedProxies 影响
func (c *Context) ClientIP() string { return c.ctx.ClientIP() }

// GetHeader 请求头
func (c *Context) GetHeader(key string) string { return c.ctx.GetHeader(key) }

// BearerToken Authorization: Bearer 凭证，缺失时为空
func (c *Context) BearerToken() string {
	return bearerToken(c.GetHeader("Authorization"))
}

// RequestContext 请求的 context.Context，附带 trace_id 与 user_id 供 logger 提取
func (c *Context) RequestContext() context.Context {
	ctx := c.ctx.Request.Context()
	if id := GetContextTraceID(c); id != "" {
		ctx = logger.WithTraceID(ctx, id)
	}
	if uid := GetContextUserID(c); uid != "" {
		ctx = logger.WithUserID(ctx, uid)
	}
	return ctx
}

// SetRequestContext 替换请求的 context，中间件注入 span 时使用
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}

// Err 处理过程中通过 RespondError 记录的最后一个错误
func (c *Context) Err() error {
	if e := c.ctx.Errors.Last(); e != nil {
		return e.Err
	}
	return nil
}

// ============ 键值 ============

// Set 写入请求级键值
func (c *Context) Set(key string, value any) { c.ctx.Set(key, value) }

// Get 读取请求级键值
func (c *Context) Get(key string) (any, bool) { return c.ctx.Get(key) }

// GetString 读取字符串键值
func (c *Context) GetString(key string) string { return c.ctx.GetString(key) }

// ============ 流程 ============

// Next 执行后续处理函数
func (c *Context) Next() { c.ctx.Next() }

// Abort 跳过后续处理函数
func (c *Context) Abort() { c.ctx.Abort() }

// AbortWithStatus 以状态码结束请求
func (c *Context) AbortWithStatus(code int) { c.ctx.AbortWithStatus(code) }

// ============ 响应 ============

// Header 设置响应头
func (c *Context) Header(key, value string) { c.ctx.Header(key, value) }

// Success 200 成功信封
func (c *Context) Success(data any) {
	c.respond(http.StatusOK, Success(data))
}

// Nil 无数据的成功信封
func (c *Context) Nil() {
	c.Success(nil)
}

// RespondError 错误信封
// 原始错误记入 gin 错误列表由请求日志输出，非业务错误对外统一为 ErrServer
func (c *Context) RespondError(err error) {
	_ = c.ctx.Error(err)
	c.respond(ErrorResponse(err))
}

func (c *Context) respond(status int, resp *Response) {
	if id := GetContextTraceID(c); id != "" {
		resp.WithTraceID(id)
	}
	c.ctx.JSON(status, resp)
}
