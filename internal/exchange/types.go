package exchange

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Topic 表示私有账户流的消息主题。
type Topic string

const (
	TopicPosition  Topic = "position"
	TopicExecution Topic = "execution"
)

// PositionRow 是经过边界解析后的仓位行，缺失或非法的数值一律为 0。
type PositionRow struct {
	Symbol        string
	Side          string // BUY / SELL，空仓时为空
	Size          decimal.Decimal
	AvgPrice      decimal.Decimal
	Leverage      string
	MarkPrice     decimal.Decimal
	PositionValue decimal.Decimal
}

// ExecutionRow 是单笔成交。Value 缺失时 HasValue=false。
type ExecutionRow struct {
	Symbol     string
	Side       string // Buy / Sell
	Price      decimal.Decimal
	Value      decimal.Decimal
	HasValue   bool
	Qty        decimal.Decimal
	Fee        decimal.Decimal
	ClosedSize decimal.Decimal
	ExecID     string
}

// Message 为投递给消费者的不可变消息。
type Message struct {
	Topic      Topic
	Positions  []PositionRow
	Executions []ExecutionRow
	ReceivedAt time.Time
}

// NormalizeSide 统一为大写 BUY / SELL，其它值保持大写原样。
func NormalizeSide(side string) string {
	return strings.ToUpper(strings.TrimSpace(side))
}
