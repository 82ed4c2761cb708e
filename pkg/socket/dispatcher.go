package socket

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tokmz/marquee/pkg/socket"

// Dispatcher 单个事件的处理流水线
//
// 解析 -> 校验 -> 中间件（认证在前）-> 处理函数 -> 应答校验与回调。
// 任一步骤的错误只在顶层交给 ErrorHandler 处理一次。
type Dispatcher struct {
	registry  *Registry
	validator *Validator
	runner    *MiddlewareRunner
	auth      *AuthService
	errors    *ErrorHandler
	metrics   Metrics
	events    *EventBus
	tracer    trace.Tracer
}

// NewDispatcher 创建分发器
func NewDispatcher(registry *Registry, validator *Validator, runner *MiddlewareRunner, auth *AuthService, errs *ErrorHandler, metrics Metrics, events *EventBus) *Dispatcher {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher{
		registry:  registry,
		validator: validator,
		runner:    runner,
		auth:      auth,
		errors:    errs,
		metrics:   metrics,
		events:    events,
		tracer:    otel.Tracer(tracerName),
	}
}

// Dispatch 处理一次事件调用
func (d *Dispatcher) Dispatch(ctx context.Context, ctrl any, ev EventDescriptor, conn *Conn, args []any, requireAuth bool) {
	start := time.Now()
	ack, args := extractAck(args)
	// 未声明应答的事件不回调，错误改走 "error" 事件
	if !ev.Acknowledgment {
		ack = nil
	}

	ns := ""
	if conn.ns != nil {
		ns = conn.ns.path
	}
	ctx, span := d.tracer.Start(ctx, "socket "+ev.EventName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("socket.namespace", ns),
			attribute.String("socket.event", ev.EventName),
			attribute.String("socket.id", conn.id),
		),
	)
	defer span.End()

	err := d.run(ctx, ctrl, ev, conn, args, ack, requireAuth)
	d.metrics.EventDispatched(ns, ev.EventName, time.Since(start))
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	se := d.errors.Handle(ctx, err, conn, ev.EventName, ack)
	d.metrics.EventFailed(ns, ev.EventName, se.Code())
	if d.events != nil {
		d.events.Publish(Lifecycle{
			Type:      LifecycleEventFailed,
			Namespace: ns,
			ConnID:    conn.id,
			UserID:    conn.UserID(),
			Event:     ev.EventName,
			Code:      se.Code(),
			Reason:    se.Error(),
		})
	}
}

func (d *Dispatcher) run(ctx context.Context, ctrl any, ev EventDescriptor, conn *Conn, args []any, ack AckFunc, requireAuth bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	var raw any
	if len(args) > 0 {
		raw = args[0]
	}
	payload := ParseEventData(raw)

	vd, _ := d.registry.Validation(ctrl, ev.MethodName)
	if vd.Incoming != nil {
		if payload, err = d.validator.Validate(vd.Incoming, payload, ev.EventName); err != nil {
			return err
		}
	}

	mws := d.registry.Middleware(ctrl, ev.MethodName)
	if requireAuth && d.auth != nil {
		mws = append([]Middleware{d.auth.GlobalAuthEventMiddleware}, mws...)
	}
	if err = d.runner.Run(ctx, mws, conn, payload, ev.EventName); err != nil {
		return err
	}

	h, ok := d.registry.Handler(ctrl, ev.MethodName)
	if !ok {
		return &HandlerNotFoundError{Event: ev.EventName, Method: ev.MethodName}
	}
	result, err := h(ctx, conn, payload)
	if err != nil {
		return err
	}

	if ack == nil {
		return nil
	}
	if vd.Acknowledgment != nil {
		if result, err = d.validator.ValidateAck(vd.Acknowledgment, result, ev.EventName); err != nil {
			return err
		}
	}
	ack(result)
	return nil
}
