// Package app 组合根：按依赖顺序构造全部服务并负责启动与关机
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tokmz/marquee"
	"github.com/tokmz/marquee/internal/activity"
	"github.com/tokmz/marquee/internal/chat"
	"github.com/tokmz/marquee/internal/metrics"
	"github.com/tokmz/marquee/internal/watchparty"
	"github.com/tokmz/marquee/pkg/broker"
	"github.com/tokmz/marquee/pkg/cache"
	"github.com/tokmz/marquee/pkg/job"
	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/orm"
	"github.com/tokmz/marquee/pkg/socket"
	"github.com/tokmz/marquee/pkg/token"
	"github.com/tokmz/marquee/pkg/tracing"
)

// App 已装配的应用
type App struct {
	cfg     *Config
	log     logger.Logger
	started time.Time

	tracer    *tracing.Provider
	metrics   *metrics.Metrics
	db        *gorm.DB
	cache     cache.Cache
	publisher broker.Publisher
	tokens    *token.Manager
	socket    *socket.Server
	chat      *chat.Controller
	parties   *watchparty.Controller
	scheduler *job.Scheduler
	engine    *marquee.Engine

	// 构造失败时逆序释放已创建的资源
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

type options struct {
	log    logger.Logger
	banner io.Writer
	clock  func() time.Time
	tracer []tracing.Option
}

// Option 应用选项
type Option func(*options)

// WithLogger 使用外部日志实例，不再按配置创建
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBanner 启动信息输出，nil 不打印
func WithBanner(w io.Writer) Option {
	return func(o *options) { o.banner = w }
}

// WithClock 令牌管理器使用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithTracingOptions 追加链路追踪选项（如测试用 SpanProcessor）
func WithTracingOptions(opts ...tracing.Option) Option {
	return func(o *options) { o.tracer = append(o.tracer, opts...) }
}

// New 按依赖顺序构造应用：
// logger → tracing → metrics → db → cache → broker → token → socket → controllers → jobs → http
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	o := &options{banner: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{cfg: cfg, started: time.Now()}
	steps := []struct {
		name string
		fn   func(context.Context, *options) error
	}{
		{"logger", a.initLogger},
		{"tracing", a.initTracing},
		{"metrics", a.initMetrics},
		{"database", a.initDatabase},
		{"cache", a.initCache},
		{"broker", a.initBroker},
		{"token", a.initTokens},
		{"socket", a.initSocket},
		{"jobs", a.initJobs},
		{"http", a.initHTTP},
	}
	for _, step := range steps {
		if err := step.fn(ctx, o); err != nil {
			// 释放已构造的资源
			a.closeAll(context.Background())
			return nil, fmt.Errorf("app: init %s: %w", step.name, err)
		}
	}
	return a, nil
}

// ============ 构造步骤 ============

func (a *App) initLogger(_ context.Context, o *options) error {
	if o.log != nil {
		a.log = o.log
		return nil
	}
	lc, err := a.cfg.Log.LoggerConfig()
	if err != nil {
		return err
	}
	l, err := logger.New(lc)
	if err != nil {
		return err
	}
	a.log = l.With(zap.String("app", a.cfg.App.Name), zap.String("env", a.cfg.App.Env))
	a.onClose("logger", func(context.Context) error {
		// stdout/stderr 上的 Sync 在部分平台返回 EINVAL
		_ = a.log.Sync()
		return nil
	})
	return nil
}

func (a *App) initTracing(ctx context.Context, o *options) error {
	p, err := tracing.New(ctx, &a.cfg.Tracing, o.tracer...)
	if err != nil {
		return err
	}
	a.tracer = p
	a.onClose("tracer", p.Shutdown)
	return nil
}

func (a *App) initMetrics(context.Context, *options) error {
	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New(a.cfg.Metrics.Namespace)
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context, _ *options) error {
	db, err := orm.New(&a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.db = db
	a.onClose("database", func(context.Context) error { return orm.Close(db) })
	return watchparty.NewStore(db).Migrate(ctx)
}

func (a *App) initCache(context.Context, *options) error {
	c, err := cache.New(&a.cfg.Cache)
	if err != nil {
		return err
	}
	a.cache = c
	a.onClose("cache", func(context.Context) error { return c.Close() })
	return nil
}

func (a *App) initBroker(ctx context.Context, _ *options) error {
	p, err := broker.New(ctx, &a.cfg.Broker.Config, a.log)
	if err != nil {
		return err
	}
	a.publisher = p
	a.onClose("broker", func(context.Context) error { return p.Close() })
	return nil
}

func (a *App) initTokens(_ context.Context, o *options) error {
	var topts []token.Option
	if o.clock != nil {
		topts = append(topts, token.WithClock(o.clock))
	}
	m, err := token.NewManager(&a.cfg.Auth.Config, topts...)
	if err != nil {
		return err
	}
	a.tokens = m
	return nil
}

func (a *App) initSocket(context.Context, *options) error {
	reg := socket.NewRegistry()
	a.chat = chat.New(reg, a.log)
	a.parties = watchparty.New(reg, watchparty.NewStore(a.db), a.cache, &a.cfg.WatchParty, a.log)

	srv, err := socket.NewServer(socket.Components{
		Registry: reg,
		Auth:     socket.NewAuthService(Verifier(a.tokens)),
	}, a.socketOptions()...)
	if err != nil {
		return err
	}
	a.socket = srv
	a.onClose("socket", srv.Shutdown)

	for _, ctrl := range []socket.Controller{a.chat, a.parties} {
		if _, err := srv.Register(ctrl); err != nil {
			return err
		}
	}

	if a.metrics != nil {
		a.metrics.ObserveLifecycle(srv)
	}
	activity.NewForwarder(a.publisher, a.cfg.Broker.Topic,
		activity.WithTimeout(a.cfg.Broker.PublishTimeout),
		activity.WithLogger(a.log),
	).Attach(srv)
	return nil
}

// socketOptions 配置段映射为 socket 选项
func (a *App) socketOptions() []socket.Option {
	sc := a.cfg.Socket
	opts := []socket.Option{
		socket.WithPath(sc.Path),
		socket.WithMaxConnections(sc.MaxConnections),
		socket.WithMessageSizeLimit(sc.MaxMessageSize),
		socket.WithHeartbeat(sc.PingInterval, sc.PongTimeout),
		socket.WithSendQueueSize(sc.SendQueueSize),
		socket.WithMaxRoomSize(sc.MaxRoomSize),
		socket.WithEventBus(sc.EventWorkers, sc.EventQueueSize),
		socket.WithEnableCompression(sc.EnableCompression),
		socket.WithProduction(a.cfg.App.Production),
		socket.WithLogger(a.log),
	}
	switch {
	case sc.AllowAllOrigins:
		opts = append(opts, socket.WithAllowAllOrigins())
	case len(sc.AllowedOrigins) > 0:
		opts = append(opts, socket.WithCheckOriginWhitelist(sc.AllowedOrigins))
	}
	if a.metrics != nil {
		opts = append(opts, socket.WithMetrics(a.metrics))
	}
	return opts
}

func (a *App) initJobs(context.Context, *options) error {
	jopts := []job.Option{job.WithLogger(a.log)}
	if a.cfg.Jobs.Timeout > 0 {
		jopts = append(jopts, job.WithJobTimeout(a.cfg.Jobs.Timeout))
	}
	if a.metrics != nil {
		jopts = append(jopts, job.WithObserver(a.metrics.ObserveJob))
	}
	a.scheduler = job.NewScheduler(jopts...)
	a.onClose("scheduler", a.scheduler.Stop)
	return a.registerJobs()
}

func (a *App) initHTTP(_ context.Context, o *options) error {
	mode := gin.DebugMode
	if a.cfg.App.Production {
		mode = gin.ReleaseMode
	}
	a.engine = marquee.New(
		marquee.WithMode(mode),
		marquee.WithServer(a.cfg.Server),
		marquee.WithShutdownTimeout(a.cfg.Shutdown.Timeout),
		marquee.WithTrustedProxies(a.cfg.HTTP.TrustedProxies...),
		marquee.WithLogger(a.log),
		marquee.WithBanner(o.banner),
	)
	if err := a.routes(); err != nil {
		return err
	}

	// HTTP 停止后依次关闭：socket → scheduler → broker → tracer → db → cache → logger
	for _, name := range []string{"socket", "scheduler", "broker", "tracer", "database", "cache", "logger"} {
		if c, ok := a.closer(name); ok {
			a.engine.OnShutdown(c.name, c.fn)
		}
	}
	a.closers = nil
	return nil
}

// ============ 运行 ============

// Run 启动后台任务与 HTTP 服务，ctx 结束后优雅关机
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	a.log.Info("marquee starting",
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("socket_path", a.socket.Path()),
	)
	return a.engine.RunContext(ctx)
}

// Shutdown 关闭 HTTP 服务与全部资源，可在未 Run 时调用
func (a *App) Shutdown(ctx context.Context) error {
	return a.engine.Shutdown(ctx)
}

// Handler HTTP 入口（供 httptest 使用）
func (a *App) Handler() *marquee.Engine {
	return a.engine
}

// Config 生效配置
func (a *App) Config() *Config { return a.cfg }

// Logger 应用日志
func (a *App) Logger() logger.Logger { return a.log }

// Socket socket 服务
func (a *App) Socket() *socket.Server { return a.socket }

// Tokens 令牌管理器
func (a *App) Tokens() *token.Manager { return a.tokens }

// Scheduler 后台任务调度器
func (a *App) Scheduler() *job.Scheduler { return a.scheduler }

// Publisher 活动流发布器
func (a *App) Publisher() broker.Publisher { return a.publisher }

// ============ 资源释放 ============

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closer(name string) (closer, bool) {
	for _, c := range a.closers {
		if c.name == name {
			return c, true
		}
	}
	return closer{}, false
}

// closeAll 构造失败时逆序释放
func (a *App) closeAll(ctx context.Context) {
	var (
		errs     []error
		released []string
	)
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		released = append(released, c.name)
	}
	a.closers = nil
	if a.log == nil {
		return
	}
	fields := []zap.Field{zap.Strings("released", released)}
	if err := errors.Join(errs...); err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.log.Warn("init failed, resources released", fields...)
}
