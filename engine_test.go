package marquee

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/tokmz/marquee/pkg/errors"
	"github.com/tokmz/marquee/pkg/logger"
)

type revokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type revokeResponse struct {
	Reason string `json:"reason"`
	UserID string `json:"userId"`
}

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithMode("test"), WithBanner(nil)}, opts...)...)
}

func decode(t *testing.T, body io.Reader) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestGenericRoutes(t *testing.T) {
	e := newTestEngine()
	api := e.Group("/api", func(c *Context) {
		SetContextUserID(c, "u-1")
		c.Next()
	})
	POST[revokeRequest, revokeResponse](api, "/revoke", func(c *Context, req *revokeRequest) (*revokeResponse, error) {
		return &revokeResponse{Reason: req.Reason, UserID: GetContextUserID(c)}, nil
	})
	GETOnly[revokeResponse](api, "/fail", func(*Context) (*revokeResponse, error) {
		return nil, apperrors.ErrNotFound
	})
	GETOnly[revokeResponse](api, "/boom", func(*Context) (*revokeResponse, error) {
		return nil, errors.New("db password leaked")
	})

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		code     int
		contains string
	}{
		{name: "bound", method: http.MethodPost, path: "/api/revoke", body: `{"reason":"logout"}`, status: 200, code: 200, contains: `"userId":"u-1"`},
		{name: "bind failure", method: http.MethodPost, path: "/api/revoke", body: `{}`, status: 400, code: 1001},
		{name: "coded error", method: http.MethodGet, path: "/api/fail", status: 404, code: 1004},
		{name: "unknown error hidden", method: http.MethodGet, path: "/api/boom", status: 500, code: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			e.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := w.Body.String()
			assert.NotContains(t, body, "leaked")
			if tt.contains != "" {
				assert.Contains(t, body, tt.contains)
			}
			assert.Equal(t, tt.code, decode(t, strings.NewReader(body)).Code)
		})
	}
}

func TestRecoveryAndLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := Default(WithMode("test"), WithBanner(nil), WithLogger(logger.FromZap(zap.New(core))))
	e.RouterGroup().GET("/panic", func(*Context) { panic("nil room") })
	e.RouterGroup().GET("/healthz", func(c *Context) { c.Nil() })
	e.RouterGroup().GET("/ok", func(c *Context) { c.Nil() })

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrServer.Code, decode(t, w.Body).Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	for _, path := range []string{"/healthz", "/ok"} {
		w = httptest.NewRecorder()
		e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 1, "excluded paths are not logged")
	assert.Equal(t, "/ok", requests[0].ContextMap()["path"])
	assert.Equal(t, "http", requests[0].ContextMap()["component"])
}

func TestMountForwardsSubpaths(t *testing.T) {
	e := newTestEngine()
	var seen []string
	var marked []string
	e.RouterGroup().Mount("/socket/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}), func(c *Context) {
		marked = append(marked, c.FullPath())
		c.Next()
	})

	for _, path := range []string{"/socket/chat", "/socket/watch-party"} {
		w := httptest.NewRecorder()
		e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}
	assert.Equal(t, []string{"/socket/chat", "/socket/watch-party"}, seen)
	assert.Equal(t, []string{"/socket/*namespace", "/socket/*namespace"}, marked)
}

func TestRequestContextCarriesIdentity(t *testing.T) {
	e := newTestEngine()
	e.RouterGroup().GET("/whoami", func(c *Context) {
		SetContextTraceID(c, "trace-1")
		SetContextUserID(c, "u-9")
		ctx := c.RequestContext()
		c.Success(map[string]string{"trace": logger.TraceID(ctx), "user": logger.UserID(ctx)})
	})

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	resp := decode(t, w.Body)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.Equal(t, map[string]any{"trace": "trace-1", "user": "u-9"}, resp.Data)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"bearer  abc ":  "abc",
		"Basic abc":     "",
		"Bearer":        "",
		"":              "",
		"Token abc def": "",
	}
	for header, want := range tests {
		assert.Equal(t, want, bearerToken(header), header)
	}
}

func TestServeShutsDownInOrder(t *testing.T) {
	var order []string
	e := newTestEngine(
		WithShutdownTimeout(time.Second),
		WithBeforeShutdown(func() { order = append(order, "before") }),
	)
	e.RouterGroup().GET("/ping", func(c *Context) { c.Success("pong") })
	e.OnShutdown("socket", func(context.Context) error {
		order = append(order, "socket")
		return nil
	})
	e.OnShutdown("scheduler", func(context.Context) error {
		order = append(order, "scheduler")
		return errors.New("stuck job")
	})
	e.OnShutdown("broker", func(context.Context) error {
		order = append(order, "broker")
		return nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, ln.Addr().String(), e.Addr())

	cancel()
	select {
	case err := <-done:
		assert.EqualError(t, err, "stuck job")
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, []string{"before", "socket", "scheduler", "broker"}, order)
	assert.NoError(t, e.Shutdown(context.Background()), "second shutdown is a no-op")
}
