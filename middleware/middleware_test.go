package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tokmz/marquee"
)

func newEngine() *marquee.Engine {
	return marquee.New(marquee.WithMode("test"), marquee.WithBanner(nil))
}

func serve(e *marquee.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	return w
}

func TestRateLimiterPerKey(t *testing.T) {
	l := NewRateLimiter(&RateLimiterConfig{RequestsPerSecond: 1, Burst: 2, Idle: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "refilled after one interval")
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("10.0.0.3"))
	assert.Equal(t, 1, l.Len(), "idle keys are collected")
}

func TestRateLimitMiddleware(t *testing.T) {
	e := newEngine()
	e.RouterGroup().GET("/socket/chat", func(c *marquee.Context) { c.Nil() },
		RateLimit(&RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 1}))

	req := httptest.NewRequest(http.MethodGet, "/socket/chat", nil)
	req.RemoteAddr = "192.0.2.7:5000"
	assert.Equal(t, http.StatusOK, serve(e, req).Code)

	w := serve(e, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/socket/chat", nil)
	other.RemoteAddr = "192.0.2.8:5000"
	assert.Equal(t, http.StatusOK, serve(e, other).Code)
}

func TestCORS(t *testing.T) {
	e := newEngine()
	e.Use(CORS(&CORSConfig{
		AllowOrigins:     []string{"https://app.example.com", "https://*.preview.example.com"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}))
	e.RouterGroup().GET("/healthz", func(c *marquee.Context) { c.Nil() })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{name: "exact", method: http.MethodGet, origin: "https://app.example.com", wantOrigin: "https://app.example.com", wantStatus: 200},
		{name: "wildcard", method: http.MethodGet, origin: "https://pr-12.preview.example.com", wantOrigin: "https://pr-12.preview.example.com", wantStatus: 200},
		{name: "empty wildcard segment", method: http.MethodGet, origin: "https://.preview.example.com", wantStatus: 200},
		{name: "denied", method: http.MethodGet, origin: "https://evil.test", wantStatus: 200},
		{name: "preflight", method: http.MethodOptions, origin: "https://app.example.com", wantOrigin: "https://app.example.com", wantStatus: 204},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/healthz", nil)
			req.Header.Set("Origin", tt.origin)
			w := serve(e, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}

	assert.Panics(t, func() { CORS(&CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}) })
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	cfg := DefaultTracingConfig()
	cfg.ExcludePaths = []string{"/metrics"}
	cfg.ExcludePrefixes = []string{"/socket/"}

	e := newEngine()
	e.Use(Tracing(cfg))
	var traceID string
	e.RouterGroup().GET("/api/sessions/:id", func(c *marquee.Context) {
		traceID = marquee.GetContextTraceID(c)
		c.AbortWithStatus(http.StatusBadGateway)
	})
	e.RouterGroup().GET("/metrics", func(c *marquee.Context) { c.Nil() })
	e.RouterGroup().GET("/socket/chat", func(c *marquee.Context) { c.Nil() })

	w := serve(e, httptest.NewRequest(http.MethodGet, "/api/sessions/42", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/socket/chat", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/sessions/:id", spans[0].Name())
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
	assert.Contains(t, w.Header().Get("Traceparent"), traceID)
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}
