// Package sockettest 提供连接 socket.Server 的测试客户端
package sockettest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("sockettest: connection closed")

// Frame 服务端下发的帧
type Frame struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Decode 解码 data
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Client 测试客户端
type Client struct {
	ws     *websocket.Conn
	seq    atomic.Uint64
	events chan Frame

	mu      sync.Mutex
	pending map[uint64]chan Frame
	writeMu sync.Mutex

	done      chan struct{}
	closeErr  atomic.Value
	closeOnce sync.Once
}

type dialOptions struct {
	token  string
	header http.Header
}

// DialOption 拨号选项
type DialOption func(*dialOptions)

// WithToken 通过查询参数传递令牌
func WithToken(token string) DialOption {
	return func(o *dialOptions) { o.token = token }
}

// WithBearer 通过 Authorization 头传递令牌
func WithBearer(token string) DialOption {
	return func(o *dialOptions) { o.header.Set("Authorization", "Bearer "+token) }
}

// WithHeader 自定义请求头
func WithHeader(key, value string) DialOption {
	return func(o *dialOptions) { o.header.Set(key, value) }
}

// Dial 连接服务；rawURL 可以是 http(s):// 或 ws(s):// 地址
func Dial(ctx context.Context, rawURL string, opts ...DialOption) (*Client, *http.Response, error) {
	o := &dialOptions{header: http.Header{}}
	for _, opt := range opts {
		opt(o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	if o.token != "" {
		q := u.Query()
		q.Set("token", o.token)
		u.RawQuery = q.Encode()
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), o.header)
	if err != nil {
		return nil, resp, err
	}

	c := &Client{
		ws:      ws,
		events:  make(chan Frame, 64),
		pending: make(map[uint64]chan Frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, resp, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closeErr.Store(err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Event == "ack" && f.Ack != nil {
			c.mu.Lock()
			ch, ok := c.pending[*f.Ack]
			delete(c.pending, *f.Ack)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}
		select {
		case c.events <- f:
		default:
		}
	}
}

// Emit 发送事件（无应答）
func (c *Client) Emit(event string, data any) error {
	return c.write(map[string]any{"event": event, "data": data})
}

// EmitRaw 发送原始文本帧
func (c *Client) EmitRaw(raw string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(raw))
}

// EmitWithAck 发送事件并等待应答
func (c *Client) EmitWithAck(ctx context.Context, event string, data any) (Frame, error) {
	id := c.seq.Add(1)
	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(map[string]any{"event": event, "data": data, "ack": id}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Frame{}, err
	}

	select {
	case f := <-ch:
		return f, nil
	case <-c.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Next 下一条非应答帧
func (c *Client) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.events:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.events:
			return f, nil
		default:
			return Frame{}, ErrClosed
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Expect 等待指定事件，期间收到的其他帧被丢弃
func (c *Client) Expect(event string, timeout time.Duration) (Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		f, err := c.Next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if f.Event == event {
			return f, nil
		}
	}
}

// Done 连接被服务端关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseError 读循环退出时的错误
func (c *Client) CloseError() error {
	err, _ := c.closeErr.Load().(error)
	return err
}

// Close 关闭连接
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		<-c.done
	})
	return err
}

func (c *Client) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}
