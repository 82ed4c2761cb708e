package chat_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/marquee/internal/chat"
	"github.com/tokmz/marquee/pkg/socket"
	"github.com/tokmz/marquee/pkg/socket/sockettest"
)

const (
	adaID   = "6f1c2a9e-0b7d-4a51-9d0e-3f3c2b1a0001"
	graceID = "6f1c2a9e-0b7d-4a51-9d0e-3f3c2b1a0002"
	linusID = "6f1c2a9e-0b7d-4a51-9d0e-3f3c2b1a0003"
)

type fixture struct {
	ctrl *chat.Controller
	url  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	verifier := socket.TokenVerifierFunc(func(_ context.Context, token string) (*socket.Identity, error) {
		switch token {
		case "ada", "grace", "linus":
			return &socket.Identity{UserID: token, Email: token + "@example.com"}, nil
		}
		return nil, socket.ErrTokenInvalid
	})

	reg := socket.NewRegistry()
	ctrl := chat.New(reg, nil)
	srv, err := socket.NewServer(socket.Components{
		Registry: reg,
		Auth:     socket.NewAuthService(verifier),
	}, socket.WithPath("/socket"), socket.WithAllowAllOrigins())
	require.NoError(t, err)
	_, err = srv.Register(ctrl)
	require.NoError(t, err)

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		hs.Close()
	})
	return &fixture{ctrl: ctrl, url: hs.URL + "/socket/chat"}
}

func (f *fixture) dial(t *testing.T, token string) *sockettest.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := sockettest.Dial(ctx, f.url, sockettest.WithToken(token))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func join(t *testing.T, c *sockettest.Client, roomID, userID, name string) chat.JoinResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := c.EmitWithAck(ctx, chat.EventJoin, map[string]string{"roomId": roomID, "userId": userID, "username": name})
	require.NoError(t, err)
	var resp chat.JoinResponse
	require.NoError(t, f.Decode(&resp))
	return resp
}

func ack(t *testing.T, c *sockettest.Client, event string, data any) sockettest.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := c.EmitWithAck(ctx, event, data)
	require.NoError(t, err)
	return f
}

// quiet 在窗口期内没有收到指定事件
func quiet(t *testing.T, c *sockettest.Client, event string) {
	t.Helper()
	f, err := c.Expect(event, 200*time.Millisecond)
	assert.Error(t, err, "unexpected %s frame: %s", event, string(f.Data))
}

func TestJoinListsUsersAndNotifiesOthers(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")

	resp := join(t, ada, "r1", adaID, "Ada")
	assert.Equal(t, chat.JoinResponse{Success: true, Users: []string{adaID}}, resp)

	resp = join(t, grace, "r1", graceID, "Grace")
	assert.Equal(t, []string{adaID, graceID}, resp.Users)

	f, err := ada.Expect(chat.EventUserJoined, 2*time.Second)
	require.NoError(t, err)
	var p chat.Presence
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, "r1", p.RoomID)
	assert.Equal(t, graceID, p.UserID)
	assert.Equal(t, "Grace", p.Username)
	assert.False(t, p.Timestamp.IsZero())

	quiet(t, grace, chat.EventUserJoined)
	assert.Equal(t, []string{adaID, graceID}, fx.ctrl.Users("r1"))
}

func TestJoinValidation(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")

	f := ack(t, ada, chat.EventJoin, map[string]string{"roomId": "", "userId": "not-a-uuid", "username": ""})
	var env socket.ErrorEnvelope
	require.NoError(t, f.Decode(&env))
	assert.False(t, env.Success)
	assert.Equal(t, socket.CodeValidation, env.Code)

	paths := make([]string, 0, len(env.Details))
	for _, d := range env.Details {
		paths = append(paths, d.Path[0])
	}
	assert.ElementsMatch(t, []string{"roomId", "userId", "username"}, paths)
}

func TestMessageFlow(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")
	join(t, ada, "r1", adaID, "Ada")
	join(t, grace, "r1", graceID, "Grace")

	f := ack(t, ada, chat.EventMessage, map[string]string{"roomId": "r1", "content": "hello"})
	var resp chat.MessageResponse
	require.NoError(t, f.Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.MessageID)

	for _, c := range []*sockettest.Client{ada, grace} {
		f, err := c.Expect(chat.EventNewMessage, 2*time.Second)
		require.NoError(t, err)
		var msg chat.Message
		require.NoError(t, f.Decode(&msg))
		assert.Equal(t, resp.MessageID, msg.ID)
		assert.Equal(t, adaID, msg.UserID)
		assert.Equal(t, "Ada", msg.Username)
		assert.Equal(t, "hello", msg.Content)
	}
}

func TestMessageRejections(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")

	tests := []struct {
		name     string
		data     map[string]string
		wantCode string
		wantErr  string
	}{
		{name: "not a member", data: map[string]string{"roomId": "r9", "content": "hi"}, wantCode: socket.CodeDefault, wantErr: chat.ErrNotMember},
		{name: "empty content", data: map[string]string{"roomId": "r9", "content": ""}, wantCode: socket.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ack(t, ada, chat.EventMessage, tt.data)
			var env socket.ErrorEnvelope
			require.NoError(t, f.Decode(&env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.False(t, env.Timestamp.IsZero())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, env.Error)
			}
		})
	}
}

func TestTypingExcludesSender(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")
	join(t, ada, "r1", adaID, "Ada")
	join(t, grace, "r1", graceID, "Grace")

	require.NoError(t, ada.Emit(chat.EventTyping, map[string]any{"roomId": "r1", "isTyping": true}))

	f, err := grace.Expect(chat.EventUserTyping, 2*time.Second)
	require.NoError(t, err)
	var typing chat.Typing
	require.NoError(t, f.Decode(&typing))
	assert.Equal(t, chat.Typing{RoomID: "r1", UserID: adaID, Username: "Ada", IsTyping: true}, typing)

	quiet(t, ada, chat.EventUserTyping)
}

func TestLeaveNotifiesRoom(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")
	join(t, ada, "r1", adaID, "Ada")
	join(t, grace, "r1", graceID, "Grace")

	require.NoError(t, grace.Emit(chat.EventLeave, map[string]string{"roomId": "r1"}))
	f, err := ada.Expect(chat.EventUserLeft, 2*time.Second)
	require.NoError(t, err)
	var p chat.Presence
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, graceID, p.UserID)
	assert.Equal(t, []string{adaID}, fx.ctrl.Users("r1"))
}

func TestDisconnectCleansUpOncePerRoom(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")
	linus := fx.dial(t, "linus")

	join(t, ada, "r1", adaID, "Ada")
	join(t, ada, "r2", adaID, "Ada")
	join(t, grace, "r1", graceID, "Grace")
	join(t, linus, "r2", linusID, "Linus")

	require.NoError(t, ada.Close())

	for _, c := range []*sockettest.Client{grace, linus} {
		f, err := c.Expect(chat.EventUserLeft, 2*time.Second)
		require.NoError(t, err)
		var p chat.Presence
		require.NoError(t, f.Decode(&p))
		assert.Equal(t, adaID, p.UserID)
		quiet(t, c, chat.EventUserLeft)
	}

	assert.Equal(t, []string{graceID}, fx.ctrl.Users("r1"))
	assert.Equal(t, []string{linusID}, fx.ctrl.Users("r2"))
	for _, room := range []string{"r1", "r2"} {
		assert.Eventually(t, func() bool {
			return len(fx.ctrl.SocketsInRoom(chat.RoomName(room))) == 1
		}, 2*time.Second, 10*time.Millisecond, "socket room %s keeps only the remaining peer", room)
	}
}

func TestRejoinDoesNotRebroadcastPresence(t *testing.T) {
	fx := newFixture(t)
	ada := fx.dial(t, "ada")
	grace := fx.dial(t, "grace")
	join(t, grace, "r1", graceID, "Grace")
	join(t, ada, "r1", adaID, "Ada")

	f, err := grace.Expect(chat.EventUserJoined, 2*time.Second)
	require.NoError(t, err)
	var p chat.Presence
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, adaID, p.UserID)

	resp := join(t, ada, "r1", adaID, "Ada L.")
	assert.True(t, resp.Success)
	assert.ElementsMatch(t, []string{graceID, adaID}, resp.Users)

	quiet(t, grace, chat.EventUserJoined)
	assert.Len(t, fx.ctrl.Users("r1"), 2)
}

func TestUnauthenticatedConnectionIsRejected(t *testing.T) {
	fx := newFixture(t)
	anon := fx.dial(t, "")

	f, err := anon.Expect(socket.ErrorEvent, 2*time.Second)
	require.NoError(t, err)
	var env socket.ErrorEnvelope
	require.NoError(t, f.Decode(&env))
	assert.Equal(t, socket.CodeAuth, env.Code)
	assert.Equal(t, socket.MsgNoToken, env.Error)

	select {
	case <-anon.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}
