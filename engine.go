package marquee

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// Engine HTTP 宿主，承载健康检查、指标、会话接口与 socket 升级路由
type Engine struct {
	config *Config
	engine *gin.Engine
	log    logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	hooks    []shutdownHook
	stopped  bool
}

// shutdownHook 关机钩子，按注册顺序在 HTTP 服务关闭后执行
type shutdownHook struct {
	name string
	fn   func(context.Context) error
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	// gin.SetMode 是全局状态，只在显式切换时调用
	if gin.Mode() != config.Mode {
		gin.SetMode(config.Mode)
	}
	silenceGin()

	ginEngine := gin.New()
	ginEngine.MaxMultipartMemory = config.MaxMultipartMemory
	ginEngine.ContextWithFallback = true

	log := config.Logger.With(zap.String("component", "http"))
	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			log.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	e := &Engine{
		config: config,
		engine: ginEngine,
		log:    log,
	}
	e.Use(Recovery(log))
	return e
}

// Default 创建一个带请求日志的 Engine，排除给定路径
func Default(opts ...Option) *Engine {
	e := New(opts...)
	e.Use(Logger(e.log, &LoggerConfig{Logger: e.log, ExcludePaths: []string{"/healthz", "/metrics"}}))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(WrapMiddlewares(middlewares...)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: e.engine.Group(path, WrapMiddlewares(middlewares...)...)}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{group: &e.engine.RouterGroup}
}

// Handler 返回底层 http.Handler（供 httptest 使用）
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Logger 返回引擎日志
func (e *Engine) Logger() logger.Logger {
	return e.log
}

// OnShutdown 注册关机钩子
// 钩子在 HTTP 服务停止接收请求后按注册顺序执行，共享关机超时
func (e *Engine) OnShutdown(name string, fn func(context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, shutdownHook{name: name, fn: fn})
}

// Run 启动服务，收到 SIGINT/SIGTERM 后优雅关机
func (e *Engine) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return e.RunContext(ctx)
}

// RunContext 启动服务，ctx 结束后优雅关机
func (e *Engine) RunContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.config.Server.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve 在给定 listener 上提供服务，ctx 结束后优雅关机
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	cfg := e.config.Server
	srv := &http.Server{
		Handler:        e.engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	e.mu.Lock()
	e.server = srv
	e.listener = ln
	e.mu.Unlock()

	e.printBanner(ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		var err error
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			err = srv.ServeTLS(ln, cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			e.log.Error("http server failed", zap.Error(err))
			_ = e.gracefulShutdown()
			return err
		}
		return nil
	case <-ctx.Done():
		e.log.Info("shutting down")
	}
	return e.gracefulShutdown()
}

// Addr 实际监听地址，未启动时为空
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// gracefulShutdown 使用配置的超时执行关机
func (e *Engine) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Shutdown.Timeout)
	defer cancel()
	return e.Shutdown(ctx)
}

// Shutdown 依次关闭 HTTP 服务与全部关机钩子，重复调用无副作用
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	srv := e.server
	hooks := append([]shutdownHook(nil), e.hooks...)
	e.mu.Unlock()

	if e.config.Shutdown.BeforeShutdown != nil {
		e.config.Shutdown.BeforeShutdown()
	}

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			e.log.Error("http server forced to close", zap.Error(err))
			errs = append(errs, err)
		}
	}

	for _, h := range hooks {
		start := time.Now()
		if err := h.fn(ctx); err != nil {
			e.log.Error("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		e.log.Debug("shutdown hook done", zap.String("hook", h.name), zap.Duration("elapsed", time.Since(start)))
	}

	e.log.Info("server exited")
	return errors.Join(errs...)
}
