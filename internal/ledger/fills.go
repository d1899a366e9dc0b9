// Package ledger 维护交易（deal）的成交累计与平仓盈亏。
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"trades-signal/internal/format"
)

// Fills 是一笔交易的成交累计量，只增不减。
type Fills struct {
	BuyQty  decimal.Decimal
	BuyVal  decimal.Decimal
	SellQty decimal.Decimal
	SellVal decimal.Decimal
	Fees    decimal.Decimal
}

// Add 按成交方向累加，手续费仅在为正时计入。
// 方向既不是买也不是卖时只累计手续费。
func (f *Fills) Add(side string, value, qty, fee decimal.Decimal) {
	switch {
	case strings.EqualFold(side, "buy"):
		f.BuyVal = f.BuyVal.Add(value)
		f.BuyQty = f.BuyQty.Add(qty)
	case strings.EqualFold(side, "sell"):
		f.SellVal = f.SellVal.Add(value)
		f.SellQty = f.SellQty.Add(qty)
	}
	if fee.IsPositive() {
		f.Fees = f.Fees.Add(fee)
	}
}

// Merge 返回两份累计量之和。
func (f Fills) Merge(other Fills) Fills {
	return Fills{
		BuyQty:  f.BuyQty.Add(other.BuyQty),
		BuyVal:  f.BuyVal.Add(other.BuyVal),
		SellQty: f.SellQty.Add(other.SellQty),
		SellVal: f.SellVal.Add(other.SellVal),
		Fees:    f.Fees.Add(other.Fees),
	}
}

// IsZero 判断是否没有任何累计。
func (f Fills) IsZero() bool {
	return f.BuyQty.IsZero() && f.BuyVal.IsZero() &&
		f.SellQty.IsZero() && f.SellVal.IsZero() && f.Fees.IsZero()
}

// PnL 计算 sell_val - buy_val - fees，按美分向零截断。
func (f Fills) PnL() decimal.Decimal {
	return format.RoundUSD(f.SellVal.Sub(f.BuyVal).Sub(f.Fees))
}
