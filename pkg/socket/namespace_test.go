package socket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRoomsAndEmit(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/rooms"}, nil)
	ns := h.register(t)
	a := h.connect(t, Handshake{})
	b := h.connect(t, Handshake{})
	c := h.connect(t, Handshake{})

	require.NoError(t, a.Join("room:1"))
	require.NoError(t, b.Join("room:1"))
	require.NoError(t, a.Join("room:1"), "joining twice is a no-op")
	require.NoError(t, c.Join("room:2"))

	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ns.SocketsInRoom("room:1"))
	assert.Equal(t, []string{"room:1", "room:2"}, ns.Rooms())
	assert.Equal(t, []string{"room:1"}, ns.RoomsOf(a.ID()))
	assert.True(t, a.InRoom("room:1"))

	require.NoError(t, ns.EmitToRoom("room:1", "hello", map[string]string{"x": "y"}))
	assert.Len(t, frames(t, a), 1)
	assert.Len(t, frames(t, b), 1)
	assert.Empty(t, frames(t, c))

	require.NoError(t, ns.BroadcastExcept("room:1", a.ID(), "typing", true))
	assert.Empty(t, frames(t, a))
	assert.Len(t, frames(t, b), 1)

	require.NoError(t, ns.Broadcast("all", 1))
	for _, conn := range []*Conn{a, b, c} {
		out := frames(t, conn)
		require.Len(t, out, 1)
		assert.Equal(t, "all", out[0].Event)
	}

	require.NoError(t, ns.EmitToSocket(c.ID(), "direct", nil))
	assert.Len(t, frames(t, c), 1)
	assert.ErrorIs(t, ns.EmitToSocket("missing", "direct", nil), ErrConnNotFound)

	a.Leave("room:1")
	assert.Equal(t, []string{b.ID()}, ns.SocketsInRoom("room:1"))
	assert.Empty(t, a.Rooms())
}

func TestRoomCapacity(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/rooms"}, nil, WithMaxRoomSize(1))
	h.register(t)
	a := h.connect(t, Handshake{})
	b := h.connect(t, Handshake{})

	require.NoError(t, a.Join("r"))
	assert.ErrorIs(t, b.Join("r"), ErrRoomFull)
}

func TestSweepEmptyRooms(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/rooms"}, nil)
	ns := h.register(t)
	a := h.connect(t, Handshake{})

	require.NoError(t, a.Join("r1"))
	require.NoError(t, a.Join("r2"))
	a.Leave("r1")

	assert.Equal(t, 0, ns.SweepEmptyRooms(time.Hour))
	assert.Equal(t, 1, ns.SweepEmptyRooms(0))
	assert.Equal(t, 1, ns.rooms.len())
	assert.Equal(t, 0, h.srv.SweepEmptyRooms(0))
}

type recordingController struct {
	*BaseController
	mu        sync.Mutex
	roomsSeen []string
	reason    string
}

func (r *recordingController) OnDisconnect(_ context.Context, conn *Conn, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomsSeen = r.SocketsInRoom("room:1")
	r.reason = reason
	_ = conn
}

func TestReleaseCleansRoomsBeforeHook(t *testing.T) {
	reg := NewRegistry()
	ctrl := &recordingController{BaseController: NewBaseController(nil)}
	reg.RegisterNamespace(ctrl, NamespaceDescriptor{Path: "/rec"})
	srv, err := NewServer(Components{Registry: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ns, err := srv.Register(ctrl)
	require.NoError(t, err)

	a := newConn(nil, ns, Handshake{})
	b := newConn(nil, ns, Handshake{})
	require.NoError(t, ns.accept(a))
	require.NoError(t, ns.accept(b))
	require.NoError(t, a.Join("room:1"))
	require.NoError(t, b.Join("room:1"))

	a.Disconnect(ReasonClientDisconnect)
	ns.release(a)

	assert.Equal(t, []string{b.ID()}, ctrl.roomsSeen)
	assert.Equal(t, ReasonClientDisconnect, ctrl.reason)
	assert.Equal(t, 1, ns.ConnectionCount())
	assert.Equal(t, 1, srv.ConnectionCount())
	_, ok := ns.Conn(a.ID())
	assert.False(t, ok)
}

func TestDisconnectUser(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/u", RequireAuth: true}, staticVerifier{"good": userIdentity})
	h.register(t)
	a := h.connect(t, Handshake{Token: "good"})
	b := h.connect(t, Handshake{Token: "good"})

	assert.Equal(t, 2, h.srv.DisconnectUser("u-1", "revoked"))
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, "revoked", a.Reason())
	assert.Equal(t, 0, h.srv.DisconnectUser("", "x"))
}

func TestRegistrarBindsOnce(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "/bind"}, nil)
	Handle0(h.reg, h.ctrl, "ping", func(context.Context, *Conn, *joinReq) error { return nil })
	h.register(t)
	c := h.connect(t, Handshake{})

	err := h.srv.registrar.RegisterEvents(c, h.reg.Events(h.ctrl), h.ctrl, false)
	assert.ErrorIs(t, err, ErrAlreadyBound)
	_, ok := c.listener("ping")
	assert.True(t, ok)
}

func TestServerRegister(t *testing.T) {
	h := newHarness(t, NamespaceDescriptor{Path: "dup/"}, nil)
	ns := h.register(t)
	assert.Equal(t, "/dup", ns.Path())

	_, err := h.srv.Register(h.ctrl)
	assert.ErrorIs(t, err, ErrNamespaceExists)

	orphan := &testController{BaseController: NewBaseController(nil)}
	_, err = h.srv.Register(orphan)
	assert.ErrorIs(t, err, ErrNamespaceNotFound)

	got, ok := h.srv.Namespace("dup")
	require.True(t, ok)
	assert.Same(t, ns, got)
	assert.Equal(t, map[string]NamespaceStats{"/dup": {}}, h.srv.Stats())
}

func TestBaseControllerUnbound(t *testing.T) {
	b := NewBaseController(nil)
	assert.Nil(t, b.Namespace())
	assert.NotPanics(t, func() {
		b.EmitToRoom("r", "e", nil)
		b.Broadcast("e", nil)
		b.EmitToSocket("id", "e", nil)
		b.BroadcastExcept("r", "id", "e", nil)
	})
	assert.Nil(t, b.SocketsInRoom("r"))
	assert.Nil(t, b.Rooms())
	assert.Nil(t, b.RoomsOf("id"))
}

func TestEventBus(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus(2, 16)
	var mu sync.Mutex
	var got []Lifecycle
	done := make(chan struct{}, 2)
	bus.Subscribe(LifecycleRoomJoined, func(ev Lifecycle) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(Lifecycle{Type: LifecycleRoomJoined, Room: "r1"})
	bus.Publish(Lifecycle{Type: LifecycleRoomLeft, Room: "ignored"})
	bus.Publish(Lifecycle{Type: LifecycleRoomJoined, Room: "r2"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lifecycle event not delivered")
		}
	}
	bus.Close()
	bus.Close()
	bus.Publish(Lifecycle{Type: LifecycleRoomJoined})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"r1", "r2"}, []string{got[0].Room, got[1].Room})
	assert.False(t, got[0].Time.IsZero())
	assert.Equal(t, int64(0), bus.Dropped())
}
