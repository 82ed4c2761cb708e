package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tokmz/marquee"
)

// CORSConfig 跨域配置
// AllowOrigins 支持 "*"、精确源与单个通配段（https://*.example.com）
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"` // 不能与 "*" 同时使用
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// DefaultCORSConfig 允许任意源访问 /api 与 /healthz，暴露 traceparent 供前端关联链路
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Traceparent"},
		MaxAge:        12 * time.Hour,
	}
}

// originSet 预编译的源匹配规则
type originSet struct {
	any       bool
	exact     map[string]struct{}
	wildcards [][2]string // 前缀, 后缀
}

func newOriginSet(origins []string) originSet {
	s := originSet{exact: make(map[string]struct{})}
	for _, o := range origins {
		switch {
		case o == "*":
			s.any = true
		case strings.Contains(o, "*"):
			prefix, suffix, _ := strings.Cut(o, "*")
			s.wildcards = append(s.wildcards, [2]string{prefix, suffix})
		default:
			s.exact[o] = struct{}{}
		}
	}
	return s
}

func (s originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	if _, ok := s.exact[origin]; ok {
		return true
	}
	for _, w := range s.wildcards {
		// 通配段不能为空
		if len(origin) > len(w[0])+len(w[1]) && strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
			return true
		}
	}
	return false
}

// CORS 跨域中间件
// 不匹配的源按普通请求放行但不带任何 CORS 头，由浏览器拦截
func CORS(cfgs ...*CORSConfig) marquee.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	origins := newOriginSet(cfg.AllowOrigins)
	if cfg.AllowCredentials && origins.any {
		panic(`marquee/middleware: CORS AllowCredentials cannot be combined with origin "*"`)
	}

	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge / time.Second))

	return func(c *marquee.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !origins.allows(origin) {
			c.Next()
			return
		}

		if origins.any {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if expose != "" {
			c.Header("Access-Control-Expose-Headers", expose)
		}

		if c.Request().Method != http.MethodOptions {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
