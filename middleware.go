package marquee

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	mqerrors "github.com/tokmz/marquee/pkg/errors"
	"github.com/tokmz/marquee/pkg/logger"
)

// LoggerConfig 请求日志中间件配置
type LoggerConfig struct {
	// Logger 日志实例（必填）
	Logger logger.Logger

	// SkipFunc 跳过日志的函数
	SkipFunc func(c *Context) bool

	// ExcludePaths 排除的路径（健康检查、指标抓取）
	ExcludePaths []string
}

// Logger 创建请求日志中间件
// 5xx 记为 Error，4xx 记为 Warn，其余为 Info；websocket 升级请求在连接关闭后才返回
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	cfg := &LoggerConfig{Logger: log}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}

	skip := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, path := range cfg.ExcludePaths {
		skip[path] = struct{}{}
	}

	return func(c *Context) {
		if _, ok := skip[c.Request().URL.Path]; ok || (cfg.SkipFunc != nil && cfg.SkipFunc(c)) {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request().URL.Path
		method := c.Request().Method

		c.Next()

		status := c.Writer().Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if errs := c.ctx.Errors; len(errs) > 0 {
			fields = append(fields, zap.String("error", errs.String()))
		}

		ctx := c.RequestContext()
		switch {
		case status >= http.StatusInternalServerError:
			cfg.Logger.ErrorContext(ctx, "request", fields...)
		case status >= http.StatusBadRequest:
			cfg.Logger.WarnContext(ctx, "request", fields...)
		default:
			cfg.Logger.InfoContext(ctx, "request", fields...)
		}
	}
}

// Recovery 创建 panic 恢复中间件
// panic 时返回统一响应格式（500）并记录堆栈
func Recovery(log logger.Logger) HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *Context) {
		defer func() {
			if err := recover(); err != nil {
				if isBrokenPipe(err) {
					log.Warn("broken pipe",
						zap.Any("error", err),
						zap.String("path", c.Request().URL.Path),
					)
					c.Abort()
					return
				}

				log.ErrorContext(c.RequestContext(), "panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)

				c.respond(ErrorResponse(mqerrors.ErrServer))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(err any) bool {
	e, ok := err.(error)
	if !ok {
		return false
	}
	var ne *net.OpError
	if !errors.As(e, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
