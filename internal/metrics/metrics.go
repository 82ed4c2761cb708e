// Package metrics 暴露 Prometheus 指标：连接、事件、帧、房间与后台任务
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokmz/marquee/pkg/socket"
)

// Config 指标配置
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"` // 指标名前缀
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{Enabled: true, Path: "/metrics", Namespace: "marquee"}
}

// Metrics Prometheus 指标集合，实现 socket.Metrics
type Metrics struct {
	registry *prometheus.Registry

	connections        *prometheus.GaugeVec
	connectionsTotal   *prometheus.CounterVec
	connectionsRejects *prometheus.CounterVec
	eventDuration      *prometheus.HistogramVec
	eventFailures      *prometheus.CounterVec
	framesDropped      *prometheus.CounterVec
	framesInvalid      *prometheus.CounterVec
	rooms              *prometheus.GaugeVec
	lifecycle          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobFailures        *prometheus.CounterVec
}

var _ socket.Metrics = (*Metrics)(nil)

// New 在独立的 Registry 上注册指标
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "marquee"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// 连接
		connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_connections",
			Help:      "Current number of open socket connections",
		}, []string{"namespace"}),
		connectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_connections_total",
			Help:      "Total number of accepted socket connections",
		}, []string{"namespace"}),
		connectionsRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_connections_rejected_total",
			Help:      "Total number of rejected socket connections",
		}, []string{"namespace", "reason"}),

		// 事件
		eventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "socket_event_duration_seconds",
			Help:      "Duration of socket event handlers in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace", "event"}),
		eventFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_event_failures_total",
			Help:      "Total number of failed socket events by error code",
		}, []string{"namespace", "event", "code"}),

		// 帧
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_dropped_total",
			Help:      "Outbound frames dropped because the send queue was full",
		}, []string{"namespace"}),
		framesInvalid: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_invalid_total",
			Help:      "Inbound frames that could not be decoded",
		}, []string{"namespace"}),

		rooms: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_rooms",
			Help:      "Current number of rooms",
		}, []string{"namespace"}),
		lifecycle: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_lifecycle_events_total",
			Help:      "Lifecycle events observed on the event bus",
		}, []string{"type", "namespace"}),

		// 任务
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 60},
		}, []string{"job"}),
		jobFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Total number of failed job runs",
		}, []string{"job"}),
	}
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ============ socket.Metrics ============

func (m *Metrics) ConnectionOpened(ns string) {
	m.connections.WithLabelValues(ns).Inc()
	m.connectionsTotal.WithLabelValues(ns).Inc()
}

func (m *Metrics) ConnectionClosed(ns string) {
	m.connections.WithLabelValues(ns).Dec()
}

func (m *Metrics) ConnectionRejected(ns, reason string) {
	m.connectionsRejects.WithLabelValues(ns, reason).Inc()
}

func (m *Metrics) EventDispatched(ns, event string, d time.Duration) {
	m.eventDuration.WithLabelValues(ns, event).Observe(d.Seconds())
}

func (m *Metrics) EventFailed(ns, event, code string) {
	m.eventFailures.WithLabelValues(ns, event, code).Inc()
}

func (m *Metrics) FrameDropped(ns string) {
	m.framesDropped.WithLabelValues(ns).Inc()
}

func (m *Metrics) InvalidFrame(ns string) {
	m.framesInvalid.WithLabelValues(ns).Inc()
}

func (m *Metrics) RoomCount(ns string, n int) {
	m.rooms.WithLabelValues(ns).Set(float64(n))
}

// ============ 订阅 ============

// ObserveLifecycle 订阅生命周期事件总线
func (m *Metrics) ObserveLifecycle(s *socket.Server) {
	for _, t := range []socket.LifecycleType{
		socket.LifecycleConnected,
		socket.LifecycleDisconnected,
		socket.LifecycleRoomJoined,
		socket.LifecycleRoomLeft,
		socket.LifecycleEventFailed,
	} {
		s.Subscribe(t, m.Lifecycle)
	}
}

// Lifecycle 记录一条生命周期事件
func (m *Metrics) Lifecycle(ev socket.Lifecycle) {
	m.lifecycle.WithLabelValues(string(ev.Type), ev.Namespace).Inc()
}

// ObserveJob 任务观察者，签名与 job.Observer 一致
func (m *Metrics) ObserveJob(name string, elapsed time.Duration, err error) {
	m.jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		m.jobFailures.WithLabelValues(name).Inc()
	}
}
