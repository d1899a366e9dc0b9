package monitor

import (
	"time"

	"trades-signal/internal/position"
)

// EventType 表示审计事件类型。
type EventType string

const (
	EventOpen     EventType = EventType(position.EventOpen)
	EventPartial  EventType = EventType(position.EventPartial)
	EventClose    EventType = EventType(position.EventClose)
	EventDetected EventType = EventType(position.EventDetected)
	EventError    EventType = "error"
)

// Event 是只追加的审计记录，ID 为随机 UUID。
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LifecyclePayload 记录一次仓位生命周期变化。
type LifecyclePayload struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Size     string `json:"size"`
	Avg      string `json:"avg"`
	Leverage string `json:"leverage"`
	Deal     int64  `json:"deal"`
	Percent  string `json:"percent,omitempty"`
	PnL      string `json:"pnl,omitempty"`
}

// ErrorPayload 记录被丢弃的消息及原因。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
