package socket

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/marquee/pkg/logger"
)

// testController 测试用控制器
type testController struct {
	*BaseController
	connected    []string
	disconnected []string
}

func (c *testController) OnConnect(_ context.Context, conn *Conn) {
	c.connected = append(c.connected, conn.ID())
}

func (c *testController) OnDisconnect(_ context.Context, conn *Conn, _ string) {
	c.disconnected = append(c.disconnected, conn.ID())
}

// testFrame 解码后的下发帧
type testFrame struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack"`
	Data  json.RawMessage `json:"data"`
}

type harness struct {
	srv  *Server
	reg  *Registry
	ctrl *testController
	ns   *Namespace
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, desc NamespaceDescriptor, verifier TokenVerifier, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))

	reg := NewRegistry()
	ctrl := &testController{BaseController: NewBaseController(log)}
	reg.RegisterNamespace(ctrl, desc)

	opts = append([]Option{WithLogger(log)}, opts...)
	srv, err := NewServer(Components{Registry: reg, Auth: NewAuthService(verifier)}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &harness{srv: srv, reg: reg, ctrl: ctrl, logs: logs}
}

// register 注册控制器（需在声明事件之后调用）
func (h *harness) register(t *testing.T) *Namespace {
	t.Helper()
	ns, err := h.srv.Register(h.ctrl)
	require.NoError(t, err)
	h.ns = ns
	return ns
}

// connect 创建无底层 websocket 的连接并完成接入
func (h *harness) connect(t *testing.T, hs Handshake) *Conn {
	t.Helper()
	c := newConn(nil, h.ns, hs)
	err := h.ns.accept(c)
	require.NoError(t, err)
	return c
}

// frames 取出连接发送队列中的所有帧
func frames(t *testing.T, c *Conn) []testFrame {
	t.Helper()
	var out []testFrame
	for {
		select {
		case b := <-c.send:
			var f testFrame
			require.NoError(t, json.Unmarshal(b, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func decodeEnvelope(t *testing.T, raw json.RawMessage) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// staticVerifier 固定令牌表
type staticVerifier map[string]*Identity

func (v staticVerifier) VerifyAccessToken(_ context.Context, token string) (*Identity, error) {
	switch token {
	case "expired":
		return nil, ErrTokenExpired
	case "broken":
		return nil, ErrTokenInvalid
	}
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, ErrTokenInvalid
}
