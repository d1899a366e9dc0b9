package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind 为生命周期事件类型。
type EventKind string

const (
	EventOpen    EventKind = "open"
	EventPartial EventKind = "partial"
	EventClose   EventKind = "close"
	// EventDetected 为启动时发现的存量仓位，只记审计不推送。
	EventDetected EventKind = "detected"
)

// Event 是一次仓位生命周期变化的摘要。
type Event struct {
	Kind      EventKind
	DealID    int64
	Symbol    string
	Side      string
	Size      decimal.Decimal
	AvgPrice  decimal.Decimal
	Leverage  string
	Notional  Notional        // 仅开仓
	ClosedPct decimal.Decimal // 仅部分平仓
	PnL       decimal.Decimal // 仅全部平仓
	At        time.Time
}

// Broadcast 判断事件是否需要推送给订阅者。
func (e Event) Broadcast() bool {
	return e.Kind != EventDetected
}
