package marquee

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// Version 版本号
const Version = "0.3.0"

const banner = `
  marquee  实时事件分发服务
  open:    %s
  socket:  %s
  version: %s
`

// printBanner 打印启动 banner 和路由表
func (e *Engine) printBanner(addr string) {
	out := e.config.Banner
	if out == nil {
		return
	}

	open := addr
	if strings.HasPrefix(open, "[::]") {
		open = "127.0.0.1" + strings.TrimPrefix(open, "[::]")
	}
	scheme, ws := "http://", "ws://"
	if e.config.Server.CertFile != "" {
		scheme, ws = "https://", "wss://"
	}

	fPrint(out, banner, scheme+open, ws+open, Version)
	fPrint(out, "\n")

	if routes := e.engine.Routes(); len(routes) > 0 {
		printRoutes(out, routes)
		fPrint(out, "\n")
	}

	fPrint(out, "[marquee] mode=%s go=%s os=%s/%s\n", e.config.Mode, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fPrint(out, "[marquee] listening on %s\n", addr)
}

// printRoutes 对齐打印路由表
func printRoutes(out io.Writer, routes gin.RoutesInfo) {
	width := 0
	for _, r := range routes {
		width = max(width, len(r.Path))
	}
	for _, r := range routes {
		fPrint(out, "[marquee] %-7s %-*s\n", r.Method, width, r.Path)
	}
}

// silenceGin 静默 Gin 的默认输出
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

// fPrint 打印到 writer，忽略错误
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
