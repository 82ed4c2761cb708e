package marquee

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/marquee/pkg/errors"
)

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// ============ 路由组管理 ============

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: rg.group.Group(path, WrapMiddlewares(middlewares...)...)}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(WrapMiddlewares(middlewares...)...)
}

// ============ 基础路由方法 ============

// GET 注册 GET 路由
func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.GET(path, chain(handler, middlewares)...)
}

// POST 注册 POST 路由
func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.POST(path, chain(handler, middlewares)...)
}

// Mount 将 http.Handler 挂载到 path 及其全部子路径
// 例如 Mount("/socket", srv) 匹配 /socket/chat、/socket/watch-party
func (rg *RouterGroup) Mount(path string, h http.Handler, middlewares ...HandlerFunc) {
	path = "/" + strings.Trim(path, "/")
	handler := FromHTTP(h)
	rg.group.GET(path+"/*namespace", chain(handler, middlewares)...)
}

// chain 组合中间件与最终处理函数
func chain(handler HandlerFunc, middlewares []HandlerFunc) []gin.HandlerFunc {
	return append(WrapMiddlewares(middlewares...), WrapHandler(handler))
}

// ============ 泛型路由（自动绑定 + 自动响应）============

// RouteRegister 路由注册函数类型
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// Handle 有请求参数，有响应数据
func Handle[Req any, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		var req Req
		if err := bind(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		reply(c, func() (any, error) { return handler(c, &req) })
	}, middlewares...)
}

// HandleOnly 无请求参数，有响应数据
func HandleOnly[Resp any](register RouteRegister, path string, handler func(*Context) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		reply(c, func() (any, error) { return handler(c) })
	}, middlewares...)
}

func reply(c *Context, fn func() (any, error)) {
	data, err := fn()
	if err != nil {
		c.RespondError(err)
		return
	}
	c.Success(data)
}

// bind GET/DELETE 绑定查询参数，其余方法绑定 JSON 请求体；路径参数按需补充
func bind(c *Context, obj any) error {
	var err error
	switch c.Request().Method {
	case http.MethodGet, http.MethodDelete:
		err = c.ctx.ShouldBindQuery(obj)
	default:
		err = c.ctx.ShouldBindJSON(obj)
	}
	if err != nil {
		return errors.ErrBadRequest.WithError(err)
	}
	if len(c.ctx.Params) > 0 {
		if err := c.ctx.ShouldBindUri(obj); err != nil {
			return errors.ErrBadRequest.WithError(err)
		}
	}
	return nil
}
