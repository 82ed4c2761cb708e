package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/marquee/pkg/logger"
)

const tracerName = "github.com/tokmz/marquee/pkg/job"

// parser 支持可选秒字段与 @every/@hourly 等描述符
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler 周期任务调度器
// 同一任务不会重叠执行，上一次未结束时本次跳过
type Scheduler struct {
	cron   *cron.Cron
	cfg    *Config
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]*entry
	started bool
	stopped atomic.Bool
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// NewScheduler 创建调度器
func NewScheduler(opts ...Option) *Scheduler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	log := cfg.Logger.With(zap.String("component", "job"))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger{log: log}),
		),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Add 注册周期任务；调度器启动前后均可调用
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || len(j.Name) > MaxJobNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidJobName, j.Name)
	}
	if j.Handler == nil {
		return fmt.Errorf("job: %s has no handler", j.Name)
	}
	schedule, err := parser.Parse(j.Spec)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidCronExpression, j.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, j.Name)
	}

	e := &entry{job: j, stats: Stats{Name: j.Name, Spec: j.Spec}}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() {
		_ = s.run(s.ctx, e)
	}))
	s.jobs[j.Name] = e
	return nil
}

// AddFunc 以函数注册周期任务
func (s *Scheduler) AddFunc(name, spec string, fn func(ctx context.Context) error) error {
	return s.Add(Job{Name: name, Spec: spec, Handler: HandlerFunc(fn)})
}

// Remove 移除任务，正在进行的执行不受影响
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	s.cron.Remove(e.id)
	delete(s.jobs, name)
	return nil
}

// Trigger 立即同步执行一次任务并返回处理器错误
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	return s.run(ctx, e)
}

// Start 启动调度，重复调用无副作用
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped.Load() {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop 停止调度并等待执行中的任务结束；ctx 到期时取消正在执行的任务
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	defer s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats 返回全部任务统计，按名称排序
func (s *Scheduler) Stats() []Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stats, 0, len(s.jobs))
	for _, e := range s.jobs {
		e.mu.Lock()
		st := e.stats
		e.mu.Unlock()
		st.NextRunAt = s.cron.Entry(e.id).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// run 执行一次任务：超时控制、panic 恢复、链路追踪、统计
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.job.Name
	if !e.running.CompareAndSwap(false, true) {
		s.log.Warn("job skipped, previous run still in progress", zap.String("job", name))
		return ErrJobRunning
	}
	defer e.running.Store(false)

	timeout := e.job.Timeout
	if timeout <= 0 {
		timeout = s.cfg.JobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "job.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.name", name),
			attribute.String("job.spec", e.job.Spec),
		),
	)
	defer span.End()

	start := time.Now()
	err := execute(ctx, e.job.Handler)
	elapsed := time.Since(start)

	e.mu.Lock()
	e.stats.Runs++
	e.stats.LastRunAt = start
	e.stats.LastDuration = elapsed
	e.stats.LastError = ""
	if err != nil {
		e.stats.Failures++
		e.stats.LastError = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.ErrorContext(ctx, "job failed", zap.String("job", name), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		span.SetStatus(codes.Ok, "")
		s.log.DebugContext(ctx, "job finished", zap.String("job", name), zap.Duration("elapsed", elapsed))
	}

	if s.cfg.Observer != nil {
		s.cfg.Observer(name, elapsed, err)
	}
	return err
}

// execute 调用处理器，panic 转为错误
func execute(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job: panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Execute(ctx)
}
