package socket

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type joinReq struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=50"`
}

type joinResp struct {
	Success bool     `json:"success"`
	Users   []string `json:"users" validate:"required"`
}

var userIdentity = &Identity{UserID: "u-1", Email: "u1@example.com"}

func authedHarness(t *testing.T) *harness {
	return newHarness(t, NamespaceDescriptor{Path: "/room", RequireAuth: true},
		staticVerifier{"good": userIdentity})
}

func send(c *Conn, event, data string, ack uint64) {
	args := []any{json.RawMessage(data)}
	if ack > 0 {
		args = append(args, c.ackFunc(ack))
	}
	c.fire(event, args)
}

func TestDispatchAckSuccess(t *testing.T) {
	h := authedHarness(t)
	calls := 0
	Handle(h.reg, h.ctrl, "room:join", func(_ context.Context, c *Conn, req *joinReq) (*joinResp, error) {
		calls++
		assert.Equal(t, "lobby", req.RoomID)
		assert.Equal(t, "u-1", c.UserID())
		return &joinResp{Success: true, Users: []string{c.UserID()}}, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 1)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.Equal(t, AckEvent, out[0].Event)
	require.NotNil(t, out[0].Ack)
	assert.Equal(t, uint64(1), *out[0].Ack)
	assert.JSONEq(t, `{"success":true,"users":["u-1"]}`, string(out[0].Data))
	assert.Equal(t, 1, calls)
}

func TestDispatchStringPayloadIsParsed(t *testing.T) {
	h := authedHarness(t)
	Handle(h.reg, h.ctrl, "room:join", func(_ context.Context, c *Conn, req *joinReq) (*joinResp, error) {
		return &joinResp{Success: true, Users: []string{req.Name}}, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:join", `"{\"roomId\":\"lobby\",\"name\":\"bob\"}"`, 2)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"success":true,"users":["bob"]}`, string(out[0].Data))
}

func TestDispatchValidationError(t *testing.T) {
	h := authedHarness(t)
	called := false
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		called = true
		return nil, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:join", `{"name":"alice"}`, 3)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.Equal(t, AckEvent, out[0].Event, "envelope goes through the ack only")
	env := decodeEnvelope(t, out[0].Data)
	assert.False(t, env.Success)
	assert.Equal(t, CodeValidation, env.Code)
	assert.Equal(t, "room:join", env.Event)
	require.Len(t, env.Details, 1)
	assert.Equal(t, []string{"roomId"}, env.Details[0].Path)
	assert.Equal(t, "roomId is required", env.Details[0].Message)
	assert.False(t, env.Timestamp.IsZero())
	assert.False(t, called)
}

func TestDispatchValidationErrorWithoutAck(t *testing.T) {
	h := authedHarness(t)
	Handle0(h.reg, h.ctrl, "room:leave", func(context.Context, *Conn, *joinReq) error { return nil })
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	// 客户端带了回调，但事件未声明应答
	send(c, "room:leave", `{"roomId":""}`, 4)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.Equal(t, ErrorEvent, out[0].Event)
	assert.Equal(t, CodeValidation, decodeEnvelope(t, out[0].Data).Code)
}

func TestDispatchNoAckForUndeclaredEvent(t *testing.T) {
	h := authedHarness(t)
	Handle(h.reg, h.ctrl, "room:ping", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		return &joinResp{Success: true, Users: []string{}}, nil
	})
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:ping", `{"roomId":"a","name":"b"}`, 5)

	assert.Empty(t, frames(t, c))
}

func TestDispatchRequiresAuthentication(t *testing.T) {
	h := authedHarness(t)
	called := false
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		called = true
		return nil, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})
	c.SetIdentity(nil)

	send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 6)

	out := frames(t, c)
	require.Len(t, out, 1)
	env := decodeEnvelope(t, out[0].Data)
	assert.Equal(t, CodeAuth, env.Code)
	assert.Equal(t, MsgAuthRequired, env.Error)
	assert.False(t, env.Success)
	assert.False(t, called)
}

func TestDispatchAuthPrecedesEventMiddleware(t *testing.T) {
	h := authedHarness(t)
	mwCalls := 0
	spy := func(context.Context, *Conn, any) (bool, error) {
		mwCalls++
		return true, nil
	}
	handled := 0
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		handled++
		return &joinResp{Success: true, Users: []string{}}, nil
	}, WithAck(), WithMiddleware(spy))
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})
	c.SetIdentity(nil)

	send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 8)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.Equal(t, CodeAuth, decodeEnvelope(t, out[0].Data).Code)
	assert.Zero(t, mwCalls)
	assert.Zero(t, handled)

	c.SetIdentity(userIdentity)
	send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 9)
	assert.Equal(t, 1, mwCalls, "event middleware runs once authenticated")
	assert.Equal(t, 1, handled)
}

func TestDispatchAckEchoesValidatedPayload(t *testing.T) {
	h := authedHarness(t)
	Handle(h.reg, h.ctrl, "room:echo", func(_ context.Context, _ *Conn, req *joinReq) (*joinReq, error) {
		return req, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:echo", `{"roomId":"lobby","name":"alice"}`, 10)

	out := frames(t, c)
	require.Len(t, out, 1)
	assert.Equal(t, AckEvent, out[0].Event)
	assert.JSONEq(t, `{"roomId":"lobby","name":"alice"}`, string(out[0].Data))
}

func TestDispatchMiddlewareRejection(t *testing.T) {
	h := authedHarness(t)
	second := false
	reject := func(context.Context, *Conn, any) (bool, error) { return false, nil }
	after := func(context.Context, *Conn, any) (bool, error) {
		second = true
		return true, nil
	}
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}, WithAck(), WithMiddleware(reject, after))
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 7)

	out := frames(t, c)
	require.Len(t, out, 1)
	env := decodeEnvelope(t, out[0].Data)
	assert.Equal(t, CodeMiddleware, env.Code)
	assert.Equal(t, MsgMiddlewareRej, env.Error)
	assert.False(t, second)
}

func TestDispatchMiddlewareSeesValidatedPayload(t *testing.T) {
	h := authedHarness(t)
	var seen any
	mw := func(_ context.Context, _ *Conn, payload any) (bool, error) {
		seen = payload
		return true, nil
	}
	Handle0(h.reg, h.ctrl, "room:leave", func(context.Context, *Conn, *joinReq) error { return nil }, WithMiddleware(mw))
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:leave", `{"roomId":"lobby","name":"alice"}`, 0)

	req, ok := seen.(*joinReq)
	require.True(t, ok)
	assert.Equal(t, "lobby", req.RoomID)
}

func TestDispatchHandlerNotFound(t *testing.T) {
	h := authedHarness(t)
	h.reg.RegisterEvent(h.ctrl, EventDescriptor{EventName: "room:ghost", MethodName: "Ghost", Acknowledgment: true})
	h.register(t)
	c := h.connect(t, Handshake{Token: "good"})

	send(c, "room:ghost", `{}`, 8)

	out := frames(t, c)
	require.Len(t, out, 1)
	env := decodeEnvelope(t, out[0].Data)
	assert.Equal(t, CodeHandlerNotFound, env.Code)
	assert.Contains(t, env.Error, "Ghost")
}

func TestDispatchHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		handler    func() (*joinResp, error)
		wantCode   string
		wantError  string
		wantStack  bool
	}{
		{
			name:      "plain error becomes internal",
			handler:   func() (*joinResp, error) { return nil, errors.New("db down") },
			wantCode:  CodeInternal,
			wantError: "db down",
			wantStack: true,
		},
		{
			name:       "production hides internal message",
			production: true,
			handler:    func() (*joinResp, error) { return nil, errors.New("db down") },
			wantCode:   CodeInternal,
			wantError:  "Internal server error",
		},
		{
			name:      "panic is recovered",
			handler:   func() (*joinResp, error) { panic("boom") },
			wantCode:  CodeInternal,
			wantError: "panic: boom",
			wantStack: true,
		},
		{
			name:      "typed socket error keeps its code",
			handler:   func() (*joinResp, error) { return nil, &MiddlewareError{Message: "host only"} },
			wantCode:  CodeMiddleware,
			wantError: "host only",
		},
		{
			name:       "handler error is shown in production",
			production: true,
			handler:    func() (*joinResp, error) { return nil, NewHandlerError("", "not a member of this room") },
			wantCode:   CodeDefault,
			wantError:  "not a member of this room",
		},
		{
			name:      "token library error maps to auth",
			handler:   func() (*joinResp, error) { return nil, errors.New("token is expired") },
			wantCode:  CodeAuth,
			wantError: MsgAuthFailed,
		},
		{
			name:      "ack schema violation",
			handler:   func() (*joinResp, error) { return &joinResp{Success: true}, nil },
			wantCode:  CodeAckValidation,
			wantError: `Acknowledgment validation failed for event "room:join"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, NamespaceDescriptor{Path: "/room"}, nil, WithProduction(tt.production))
			Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
				return tt.handler()
			}, WithAck())
			h.register(t)
			c := h.connect(t, Handshake{})

			send(c, "room:join", `{"roomId":"lobby","name":"alice"}`, 9)

			out := frames(t, c)
			require.Len(t, out, 1)
			env := decodeEnvelope(t, out[0].Data)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.Equal(t, tt.wantError, env.Error)
			assert.Equal(t, tt.wantStack, env.Stack != "")
		})
	}
}

func TestDispatchAckCalledOnce(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/room"}, nil)
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		return &joinResp{Success: true, Users: []string{}}, nil
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{})

	calls := 0
	ack := AckFunc(func(any) { calls++ })
	ev := h.reg.Events(h.ctrl)[0]
	h.srv.dispatcher.Dispatch(context.Background(), h.ctrl, ev, c, []any{json.RawMessage(`{"roomId":"a","name":"b"}`), ack}, false)
	assert.Equal(t, 1, calls)

	// 回调本身只生效一次
	fn := c.ackFunc(10)
	fn("first")
	fn("second")
	out := frames(t, c)
	require.Len(t, out, 1)
	assert.JSONEq(t, `"first"`, string(out[0].Data))
}

func TestDispatchLogsByKind(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/room"}, nil)
	Handle(h.reg, h.ctrl, "room:join", func(context.Context, *Conn, *joinReq) (*joinResp, error) {
		return nil, errors.New("db down")
	}, WithAck())
	h.register(t)
	c := h.connect(t, Handshake{})

	send(c, "room:join", `{}`, 11)
	send(c, "room:join", `{"roomId":"a","name":"b"}`, 12)

	warn := h.logs.FilterMessage("socket event error").FilterField(zap.String("code", CodeValidation))
	errs := h.logs.FilterMessage("socket event error").FilterField(zap.String("code", CodeInternal))
	require.Equal(t, 1, warn.Len())
	require.Equal(t, 1, errs.Len())
	assert.Equal(t, "warn", warn.All()[0].Level.String())
	assert.Equal(t, "error", errs.All()[0].Level.String())
	assert.Equal(t, c.ID(), errs.All()[0].ContextMap()["socket_id"])
}

func TestUnknownEventIsIgnored(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/room"}, nil)
	h.register(t)
	c := h.connect(t, Handshake{})

	send(c, "room:unknown", `{}`, 13)

	assert.Empty(t, frames(t, c))
	assert.Equal(t, 1, h.logs.FilterMessage("no listener for event").Len())
}
