package socket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

// Components 由组合根显式构造并注入的框架服务
//
// 为 nil 的字段使用默认实现；Registry 必填。
type Components struct {
	Registry  *Registry
	Validator *Validator
	Runner    *MiddlewareRunner
	Auth      *AuthService
	Errors    *ErrorHandler
}

// Server 实时事件服务
type Server struct {
	config   *Config
	log      logger.Logger
	metrics  Metrics
	upgrader *websocket.Upgrader

	registry   *Registry
	validator  *Validator
	runner     *MiddlewareRunner
	auth       *AuthService
	errors     *ErrorHandler
	dispatcher *Dispatcher
	registrar  *Registrar
	events     *EventBus

	pool *connPool

	mu         sync.RWMutex
	namespaces map[string]*Namespace

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool
}

// NewServer 创建服务
func NewServer(c Components, opts ...Option) (*Server, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if c.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if config.Metrics == nil {
		config.Metrics = NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	if c.Validator == nil {
		c.Validator = NewValidator()
	}
	if c.Runner == nil {
		c.Runner = NewMiddlewareRunner()
	}
	if c.Auth == nil {
		c.Auth = NewAuthService(nil)
	}
	if c.Errors == nil {
		c.Errors = NewErrorHandler(config.Logger, config.Production)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := NewEventBus(config.EventWorkers, config.EventQueueSize)
	dispatcher := NewDispatcher(c.Registry, c.Validator, c.Runner, c.Auth, c.Errors, config.Metrics, events)

	return &Server{
		config:     config,
		log:        config.Logger,
		metrics:    config.Metrics,
		upgrader:   newUpgrader(config),
		registry:   c.Registry,
		validator:  c.Validator,
		runner:     c.Runner,
		auth:       c.Auth,
		errors:     c.Errors,
		dispatcher: dispatcher,
		registrar:  NewRegistrar(dispatcher),
		events:     events,
		pool:       newConnPool(config.MaxConnections),
		namespaces: make(map[string]*Namespace),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Register 注册控制器，命名空间描述取自 Registry
func (s *Server) Register(ctrl Controller) (*Namespace, error) {
	desc, ok := s.registry.Namespace(ctrl)
	if !ok {
		return nil, fmt.Errorf("%w: controller %T has no namespace metadata", ErrNamespaceNotFound, ctrl)
	}
	desc.Path = "/" + strings.Trim(desc.Path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.namespaces[desc.Path]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceExists, desc.Path)
	}
	ns := newNamespace(s, ctrl, desc)
	s.namespaces[desc.Path] = ns
	ctrl.Attach(ns)

	s.log.Info("socket namespace registered",
		zap.String("namespace", desc.Path),
		zap.Bool("require_auth", desc.RequireAuth),
		zap.Int("events", len(s.registry.Events(ctrl))),
	)
	return ns, nil
}

// Namespace 按路径获取命名空间
func (s *Server) Namespace(path string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces["/"+strings.Trim(path, "/")]
	return ns, ok
}

// Namespaces 所有命名空间（按路径排序）
func (s *Server) Namespaces() []*Namespace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Path 挂载路径
func (s *Server) Path() string { return s.config.Path }

// Events 生命周期事件总线
func (s *Server) Events() *EventBus { return s.events }

// Subscribe 订阅生命周期事件
func (s *Server) Subscribe(t LifecycleType, h LifecycleHandler) {
	s.events.Subscribe(t, h)
}

// ServeHTTP 处理升级请求：GET {Path}/{namespace}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, found := strings.CutPrefix(r.URL.Path, s.config.Path)
	if s.config.Path == "/" {
		rest, found = r.URL.Path, true
	}
	// 前缀须落在路径段边界上
	if rest != "" && !strings.HasPrefix(rest, "/") {
		found = false
	}
	ns, ok := s.Namespace(rest)
	if !found || !ok {
		http.Error(w, "namespace not found", http.StatusNotFound)
		return
	}
	if s.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if s.pool.full() {
		s.metrics.ConnectionRejected(ns.path, "capacity")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入 HTTP 错误响应
		s.log.Debug("socket upgrade failed", zap.String("namespace", ns.path), zap.Error(err))
		return
	}

	query := r.URL.Query()
	c := newConn(ws, ns, Handshake{
		Token:      query.Get("token"),
		Header:     r.Header.Clone(),
		Query:      query,
		RemoteAddr: remoteIP(r),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.run()
	}()
}

// DisconnectUser 断开某用户的所有连接，返回断开数量
func (s *Server) DisconnectUser(userID, reason string) int {
	if userID == "" {
		return 0
	}
	n := 0
	s.pool.each(func(c *Conn) bool {
		if c.UserID() == userID {
			c.Disconnect(reason)
			n++
		}
		return true
	})
	return n
}

// ConnectionCount 总连接数
func (s *Server) ConnectionCount() int {
	return s.pool.len()
}

// Stats 各命名空间连接数与房间数
func (s *Server) Stats() map[string]NamespaceStats {
	out := make(map[string]NamespaceStats)
	for _, ns := range s.Namespaces() {
		out[ns.path] = NamespaceStats{
			Connections: ns.ConnectionCount(),
			Rooms:       len(ns.Rooms()),
		}
	}
	return out
}

// NamespaceStats 命名空间统计
type NamespaceStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// SweepEmptyRooms 回收所有命名空间中空置超时的房间
func (s *Server) SweepEmptyRooms(idle time.Duration) int {
	n := 0
	for _, ns := range s.Namespaces() {
		n += ns.SweepEmptyRooms(idle)
	}
	return n
}

// Shutdown 优雅关闭：断开所有连接并等待清理完成
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	for _, c := range s.pool.snapshot() {
		c.Disconnect(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	s.events.Close()
	return err
}

// remoteIP 优先取代理头中的客户端地址
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
