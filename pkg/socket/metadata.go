package socket

import (
	"context"
	"fmt"
	"sync"
)

// NamespaceDescriptor 命名空间描述
type NamespaceDescriptor struct {
	Path        string
	RequireAuth bool
	Guards      []Guard // 连接级守卫，按顺序执行
}

// EventDescriptor 事件描述
type EventDescriptor struct {
	EventName      string
	MethodName     string
	Acknowledgment bool
	Description    string
}

// ValidationDescriptor 事件的入参与应答 schema
type ValidationDescriptor struct {
	Incoming       Schema
	Acknowledgment Schema
}

// HandlerFunc 绑定到事件的应用处理函数，payload 为校验后的值
type HandlerFunc func(ctx context.Context, conn *Conn, payload any) (any, error)

// Guard 连接级守卫，返回错误即拒绝连接
type Guard func(ctx context.Context, conn *Conn) error

// controllerMeta 单个控制器的元数据
type controllerMeta struct {
	namespace   *NamespaceDescriptor
	events      []EventDescriptor
	validations map[string]ValidationDescriptor
	middlewares map[string][]Middleware
	handlers    map[string]HandlerFunc
}

// Registry 控制器元数据注册表
//
// 启动时由控制器构造函数显式填充，之后只读。
// 同一 (控制器, 方法, 类别) 重复注册会覆盖。
type Registry struct {
	mu          sync.RWMutex
	controllers map[any]*controllerMeta
	order       []any
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[any]*controllerMeta)}
}

func (r *Registry) meta(ctrl any) *controllerMeta {
	m, ok := r.controllers[ctrl]
	if !ok {
		m = &controllerMeta{
			validations: make(map[string]ValidationDescriptor),
			middlewares: make(map[string][]Middleware),
			handlers:    make(map[string]HandlerFunc),
		}
		r.controllers[ctrl] = m
		r.order = append(r.order, ctrl)
	}
	return m
}

// RegisterNamespace 注册命名空间
func (r *Registry) RegisterNamespace(ctrl any, desc NamespaceDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := desc
	d.Guards = append([]Guard(nil), desc.Guards...)
	r.meta(ctrl).namespace = &d
}

// RegisterEvent 注册事件，同一方法名重复注册时覆盖
func (r *Registry) RegisterEvent(ctrl any, desc EventDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.meta(ctrl)
	if desc.MethodName == "" {
		desc.MethodName = desc.EventName
	}
	for i, e := range m.events {
		if e.MethodName == desc.MethodName {
			m.events[i] = desc
			return
		}
	}
	m.events = append(m.events, desc)
}

// RegisterValidation 注册方法的 schema
func (r *Registry) RegisterValidation(ctrl any, method string, desc ValidationDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta(ctrl).validations[method] = desc
}

// RegisterMiddleware 注册方法的事件中间件
func (r *Registry) RegisterMiddleware(ctrl any, method string, mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta(ctrl).middlewares[method] = append([]Middleware(nil), mws...)
}

// RegisterHandler 绑定方法的处理函数
func (r *Registry) RegisterHandler(ctrl any, method string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta(ctrl).handlers[method] = h
}

// Namespace 获取命名空间描述
func (r *Registry) Namespace(ctrl any) (NamespaceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.controllers[ctrl]
	if !ok || m.namespace == nil {
		return NamespaceDescriptor{}, false
	}
	return *m.namespace, true
}

// Events 获取控制器的事件列表（按注册顺序）
func (r *Registry) Events(ctrl any) []EventDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.controllers[ctrl]
	if !ok {
		return nil
	}
	return append([]EventDescriptor(nil), m.events...)
}

// Validation 获取方法的 schema
func (r *Registry) Validation(ctrl any, method string) (ValidationDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.controllers[ctrl]
	if !ok {
		return ValidationDescriptor{}, false
	}
	v, ok := m.validations[method]
	return v, ok
}

// Middleware 获取方法的事件中间件
func (r *Registry) Middleware(ctrl any, method string) []Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.controllers[ctrl]
	if !ok {
		return nil
	}
	return m.middlewares[method]
}

// Handler 获取方法绑定的处理函数
func (r *Registry) Handler(ctrl any, method string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.controllers[ctrl]
	if !ok {
		return nil, false
	}
	h, ok := m.handlers[method]
	return h, ok
}

// Controllers 已注册命名空间的控制器（按注册顺序）
func (r *Registry) Controllers() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]any, 0, len(r.order))
	for _, c := range r.order {
		if r.controllers[c].namespace != nil {
			out = append(out, c)
		}
	}
	return out
}

// ============ 泛型事件注册 ============

// EventOption 事件注册选项
type EventOption func(*eventOptions)

type eventOptions struct {
	method      string
	ack         bool
	ackSchema   bool
	description string
	middlewares []Middleware
}

// WithAck 声明事件需要应答
func WithAck() EventOption {
	return func(o *eventOptions) {
		o.ack = true
	}
}

// WithoutAckSchema 不校验应答数据
func WithoutAckSchema() EventOption {
	return func(o *eventOptions) {
		o.ackSchema = false
	}
}

// WithMethodName 指定方法名（默认与事件名相同）
func WithMethodName(name string) EventOption {
	return func(o *eventOptions) {
		o.method = name
	}
}

// WithDescription 事件说明
func WithDescription(desc string) EventOption {
	return func(o *eventOptions) {
		o.description = desc
	}
}

// WithMiddleware 事件中间件
func WithMiddleware(mws ...Middleware) EventOption {
	return func(o *eventOptions) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

func buildEventOptions(event string, opts []EventOption) *eventOptions {
	o := &eventOptions{method: event, ackSchema: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle 注册有入参、有应答数据的事件
func Handle[Req any, Resp any](r *Registry, ctrl any, event string, fn func(context.Context, *Conn, *Req) (*Resp, error), opts ...EventOption) {
	o := buildEventOptions(event, opts)
	vd := ValidationDescriptor{Incoming: Struct[Req]()}
	if o.ack && o.ackSchema {
		vd.Acknowledgment = Struct[Resp]()
	}
	register(r, ctrl, event, o, vd, func(ctx context.Context, conn *Conn, payload any) (any, error) {
		req, ok := payload.(*Req)
		if !ok {
			return nil, NewInternalError(fmt.Errorf("socket: unexpected payload type %T for %q", payload, event))
		}
		return fn(ctx, conn, req)
	})
}

// Handle0 注册有入参、无应答数据的事件
func Handle0[Req any](r *Registry, ctrl any, event string, fn func(context.Context, *Conn, *Req) error, opts ...EventOption) {
	o := buildEventOptions(event, opts)
	vd := ValidationDescriptor{Incoming: Struct[Req]()}
	register(r, ctrl, event, o, vd, func(ctx context.Context, conn *Conn, payload any) (any, error) {
		req, ok := payload.(*Req)
		if !ok {
			return nil, NewInternalError(fmt.Errorf("socket: unexpected payload type %T for %q", payload, event))
		}
		return nil, fn(ctx, conn, req)
	})
}

func register(r *Registry, ctrl any, event string, o *eventOptions, vd ValidationDescriptor, h HandlerFunc) {
	r.RegisterEvent(ctrl, EventDescriptor{
		EventName:      event,
		MethodName:     o.method,
		Acknowledgment: o.ack,
		Description:    o.description,
	})
	r.RegisterValidation(ctrl, o.method, vd)
	if len(o.middlewares) > 0 {
		r.RegisterMiddleware(ctrl, o.method, o.middlewares...)
	}
	r.RegisterHandler(ctrl, o.method, h)
}
