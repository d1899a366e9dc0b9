package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrDealNotFound 表示交易记录不存在。
	ErrDealNotFound = errors.New("ledger: deal not found")
	// ErrDealClosed 表示交易已平仓，不再接受累计。
	ErrDealClosed = errors.New("ledger: deal already closed")
)

// Status 为交易状态。
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Deal 表示一次从开仓到平仓的完整生命周期。
type Deal struct {
	ID      int64
	Symbol  string
	Side    string
	StartTS int64
	EndTS   int64 // 未平仓时为 0
	Fills
	Status Status
	PnL    decimal.Decimal
	HasPnL bool
}

// Closed 判断交易是否已平仓。
func (d Deal) Closed() bool {
	return d.Status == StatusClosed
}

// RealizedPnL 优先返回已保存的盈亏，缺失时按累计量现算。
func (d Deal) RealizedPnL() decimal.Decimal {
	if d.HasPnL {
		return d.PnL
	}
	return d.Fills.PnL()
}

// Shell 是首次写入交易时使用的初始字段，已存在的记录不会被覆盖。
type Shell struct {
	ID      int64
	Symbol  string
	Side    string
	StartTS int64
}
