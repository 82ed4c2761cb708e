package socket

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// AckEvent 应答帧的事件名
const AckEvent = "ack"

// ErrorEvent 错误事件名
const ErrorEvent = "error"

// inboundFrame 客户端发来的帧
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

// outboundFrame 服务端下发的帧
type outboundFrame struct {
	Event string  `json:"event"`
	Ack   *uint64 `json:"ack,omitempty"`
	Data  any     `json:"data"`
}

var framePool = sync.Pool{
	New: func() any {
		return &outboundFrame{}
	},
}

// encodeFrame 编码下发帧
func encodeFrame(event string, ack *uint64, data any) ([]byte, error) {
	f := framePool.Get().(*outboundFrame)
	f.Event, f.Ack, f.Data = event, ack, data
	b, err := json.Marshal(f)
	f.Event, f.Ack, f.Data = "", nil, nil
	framePool.Put(f)
	return b, err
}

// ErrorEnvelope 发送给客户端的错误信封
type ErrorEnvelope struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Event     string    `json:"event,omitempty"`
	Details   []Issue   `json:"details,omitempty"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// toEnvelope 错误到信封的唯一映射
func toEnvelope(se Error, event string, withStack bool, now time.Time) ErrorEnvelope {
	env := ErrorEnvelope{
		Error:     se.Error(),
		Code:      se.Code(),
		Event:     event,
		Timestamp: now,
	}
	if env.Code == "" {
		env.Code = CodeDefault
	}
	switch e := se.(type) {
	case *ValidationError:
		env.Details = e.Details
		if env.Event == "" {
			env.Event = e.Event
		}
	case *AckValidationError:
		env.Details = e.Details
	case *InternalError:
		if withStack {
			env.Stack = e.Stack
		} else {
			env.Error = "Internal server error"
		}
	}
	return env
}
